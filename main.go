/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/shipnest/apiserver/cmd"

func main() {
	cmd.Execute()
}
