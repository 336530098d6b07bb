package main

import (
	"context"
	"strings"

	"github.com/trezcool/academia/core/user"
)

// addUser updates or creates an active user.User; admins get the admin roles.
func (cli *commandLine) addUser(name, email, pwd string, isAdmin, isSuper bool) error {
	roles := []string{}
	if isAdmin || isSuper {
		roles = append(roles, user.RoleAdmin)
	}
	if isSuper {
		roles = append(roles, user.RoleAdminSuper)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	_, err := cli.usrSvc.UpdateOrCreate(context.Background(), name, email, pwd, roles)
	return err
}
