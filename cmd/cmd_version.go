package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run: func(*cobra.Command, []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails returns the version, commit and build date set at link time
func BuildDetails() string {
	if version == "" {
		return "TenantDB (unknown version)"
	}
	return fmt.Sprintf(`TenantDB %s
Commit SHA-1 : %s
Commit timestamp : %s
Go version : %s`, version, commit, date, runtime.Version())
}
