// Package main provides the faceswap command line tool.
package main

func main() {
	Execute()
}
