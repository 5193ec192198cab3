package main

import (
	"context"

	"custodian/internal/cli"
)

func main() {
	cli.Execute(context.Background())
}
