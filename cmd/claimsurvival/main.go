package main

import "github.com/dbsmedya/claimsurvival/cmd/claimsurvival/cmd"

func main() {
	cmd.Execute()
}
