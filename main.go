package main

import "github.com/erhanakin/sms-transfer-migration/cmd"

func main() {
	cmd.Execute()
}
