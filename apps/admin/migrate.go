package main

import (
	"github.com/trezcool/academia/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLEngine
	}
	return runMigrationsFunc(cli.db, args[0], args[1:]...)
}
