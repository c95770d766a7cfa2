/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "valorbot/cmd"

func main() {
	cmd.Execute()
}
