package main

import "github.com/railpay/paymentsd/internal/cli"

func main() {
	cli.Execute()
}
