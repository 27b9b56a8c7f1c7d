package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/jesseduffield/yaml"
	"github.com/kswings/kswingsd/pkg/app"
	"github.com/kswings/kswingsd/pkg/config"
)

var (
	commit      string
	version     = "unversioned"
	date        string
	buildSource = "unknown"

	configFlag    = false
	debuggingFlag = false
	rootFlag      = ""
)

func main() {
	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		buildSource,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("kswingsd")
	flaggy.SetDescription("Host agent exposing a remote control plane for container workloads")

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "Write debug logs to the config dir")
	flaggy.String(&rootFlag, "r", "root", "Data directory for storage/ and volumes/")
	flaggy.SetVersion(info)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		err := encoder.Encode(config.GetDefaultConfig())
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err.Error())
	}

	appConfig, err := config.NewAppConfig("kswingsd", version, commit, date, buildSource, debuggingFlag, rootFlag, projectDir)
	if err != nil {
		log.Fatal(err.Error())
	}

	fmt.Println(color.New(color.FgGreen).Sprintf("kswingsd %s", version))

	app, err := app.NewApp(appConfig)
	if err == nil {
		defer app.Close()
		err = app.Run()
	}

	if err != nil {
		if errMessage, known := app.KnownError(err); known {
			log.Fatal(errMessage)
		}

		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		app.Log.Error(stackTrace)

		log.Fatal(fmt.Sprintf("an error occurred\n\n%s", stackTrace))
	}
}
