package cmd

import (
	"fmt"

	"github.com/filer/filer/internal/config"
)

func runConfigPaths() error {
	for _, p := range config.Paths() {
		fmt.Println(p)
	}
	return nil
}
