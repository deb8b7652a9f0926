package main

import (
	"fmt"
	"os"

	"github.com/pointlab/pointlab/cmd/pointlab/cluster"
	"github.com/pointlab/pointlab/cmd/pointlab/serve"
	"github.com/pointlab/pointlab/cmd/pointlab/sweep"
	"github.com/pointlab/pointlab/cmd/pointlab/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve.Run(os.Args[2:])
	case "cluster":
		cluster.Run(os.Args[2:])
	case "sweep":
		sweep.Run(os.Args[2:])
	case "version":
		version.Run()
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pointlab - damped k-means clustering for 2-D points

Usage:
  pointlab <command> [options]

Commands:
  serve     Start the HTTP API
  cluster   Cluster a file of points and print the result as JSON
  sweep     Report inertia for a range of cluster counts
  version   Print version information
  help      Show this help message

Run 'pointlab <command> --help' for more information on a command.`)
}
