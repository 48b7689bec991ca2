package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
)

// handleV1Script renders an install script for a build. The format path
// segment selects bash or powershell; ?echo=false suppresses progress
// output.
func (s *Server) handleV1Script(r *http.Request) (*Response, error) {
	id, err := strconv.ParseInt(r.PathValue("build"), 10, 64)
	if err != nil {
		return nil, BadRequest("invalid build id %q", r.PathValue("build"))
	}

	lookup, err := s.store.BuildByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, NotFound("build not found")
	}
	if err != nil {
		return nil, err
	}

	echo := r.URL.Query().Get("echo") != "false"

	var script string
	switch r.PathValue("format") {
	case "bash":
		script = bashScript(lookup.Build, echo)
	case "powershell":
		script = powershellScript(lookup.Build, echo)
	default:
		return nil, NotFound("unknown script format %q", r.PathValue("format"))
	}

	return Text(http.StatusOK, script), nil
}

func bashScript(build *models.Build, echo bool) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\nset -e\n\n")
	if echo {
		fmt.Fprintf(&b, "echo \"Installing %s %s\"\n\n", build.Type, build.Name)
	}

	for i, stage := range build.Installation {
		if echo {
			fmt.Fprintf(&b, "echo \"Stage %d/%d\"\n", i+1, len(build.Installation))
		}
		for _, step := range stage {
			switch step.Type {
			case models.StepDownload:
				fmt.Fprintf(&b, "curl -fsSL -o %q %q &\n", step.File, step.URL)
			case models.StepUnzip:
				fmt.Fprintf(&b, "unzip -o %q -d %q &\n", step.File, step.Location)
			case models.StepRemove:
				fmt.Fprintf(&b, "rm -rf %q &\n", step.Location)
			}
		}
		b.WriteString("wait\n\n")
	}

	if echo {
		b.WriteString("echo \"Done\"\n")
	}
	return b.String()
}

func powershellScript(build *models.Build, echo bool) string {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference = \"Stop\"\n\n")
	if echo {
		fmt.Fprintf(&b, "Write-Host \"Installing %s %s\"\n\n", build.Type, build.Name)
	}

	for i, stage := range build.Installation {
		if echo {
			fmt.Fprintf(&b, "Write-Host \"Stage %d/%d\"\n", i+1, len(build.Installation))
		}
		b.WriteString("$jobs = @()\n")
		for _, step := range stage {
			switch step.Type {
			case models.StepDownload:
				fmt.Fprintf(&b,
					"$jobs += Start-Job { Invoke-WebRequest -Uri \"%s\" -OutFile \"%s\" }\n",
					step.URL, step.File)
			case models.StepUnzip:
				fmt.Fprintf(&b,
					"$jobs += Start-Job { Expand-Archive -Path \"%s\" -DestinationPath \"%s\" -Force }\n",
					step.File, step.Location)
			case models.StepRemove:
				fmt.Fprintf(&b,
					"$jobs += Start-Job { Remove-Item -Recurse -Force \"%s\" }\n",
					step.Location)
			}
		}
		b.WriteString("$jobs | Wait-Job | Out-Null\n\n")
	}

	if echo {
		b.WriteString("Write-Host \"Done\"\n")
	}
	return b.String()
}
