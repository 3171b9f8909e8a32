package main

import "swap-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
