package main

import "github.com/sensit/sensit/cmd/sensit"

func main() { sensit.Execute() }
