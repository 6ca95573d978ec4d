package main

import (
	"context"

	"github.com/pkg/errors"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	err := cli.usrSvc.ResetPassword(context.Background(), email, pwd)
	return errors.Cause(err)
}
