package main

import "dbx/dbcli"

func main() {
	dbcli.Execute()
}
