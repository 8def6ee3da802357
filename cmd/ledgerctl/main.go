package main

import (
	"fmt"
	"io"
	"os"

	httpadapter "agora/contexts/platform-ops/message-ledger/adapters/http"
	"agora/internal/app/bootstrap"
	"agora/internal/cli"
)

func main() {
	root := cli.NewRootCommand(func(logOutput io.Writer) (httpadapter.Handler, func() error, error) {
		module, closeFn, err := bootstrap.BuildLedger(logOutput)
		if err != nil {
			return httpadapter.Handler{}, nil, err
		}
		return module.Handler, closeFn, nil
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
