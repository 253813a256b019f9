package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/datakeeper/internal/keeperctl"
)

func main() {
	if err := keeperctl.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
