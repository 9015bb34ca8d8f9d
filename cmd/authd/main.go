package main

import (
	"fmt"
	"os"

	"github.com/sandeepkv93/device-auth-service/internal/tools/authctl"
)

func main() {
	if err := authctl.NewRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
