package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	apiclient "github.com/splax/todos/pkg/api/client"
)

func commandUsers(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: todo users <list|get|create|update|rm>")
	}
	switch args[0] {
	case "list":
		return usersList(args[1:])
	case "get":
		return usersGet(args[1:])
	case "create":
		return usersCreate(args[1:])
	case "update":
		return usersUpdate(args[1:])
	case "rm", "delete":
		return usersRemove(args[1:])
	default:
		return fmt.Errorf("unknown users subcommand %q", args[0])
	}
}

func printUser(u apiclient.User) {
	fmt.Printf("%d\t%s\t%s\t%s\t%d todos\n", u.ID, u.Name, u.Email, strings.Join(u.Permission, ","), len(u.Todos))
}

func usersList(args []string) error {
	fs := flag.NewFlagSet("users list", flag.ExitOnError)
	q := fs.String("q", "", "Match name or email")
	page := fs.Int("page", 0, "Page number")
	size := fs.Int("size", 0, "Page size (1-10)")
	fs.Parse(args)

	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		users, err := client.ListUsers(ctx, apiclient.UserQuery{Q: *q, Page: *page, Size: *size})
		if err != nil {
			return err
		}
		for _, u := range users {
			printUser(u)
		}
		return nil
	})
}

func usersGet(args []string) error {
	fs := flag.NewFlagSet("users get", flag.ExitOnError)
	id := fs.Int64("id", 0, "User identifier")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		user, err := client.GetUser(ctx, *id)
		if err != nil {
			return err
		}
		printUser(user)
		return nil
	})
}

func usersCreate(args []string) error {
	fs := flag.NewFlagSet("users create", flag.ExitOnError)
	name := fs.String("name", "", "Display name (3-30 characters)")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--name and --email are required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		user, err := client.CreateUser(ctx, *name, *email, secret)
		if err != nil {
			return err
		}
		printUser(user)
		return nil
	})
}

func usersUpdate(args []string) error {
	fs := flag.NewFlagSet("users update", flag.ExitOnError)
	id := fs.Int64("id", 0, "User identifier")
	email := fs.String("email", "", "New email address")
	password := fs.String("password", "", "New password")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	var input apiclient.UserUpdate
	if strings.TrimSpace(*email) != "" {
		input.Email = email
	}
	if *password != "" {
		input.Password = password
	}
	if input.Email == nil && input.Password == nil {
		return errors.New("nothing to update, pass --email and/or --password")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		user, err := client.UpdateUser(ctx, *id, input)
		if err != nil {
			return err
		}
		printUser(user)
		return nil
	})
}

func usersRemove(args []string) error {
	fs := flag.NewFlagSet("users rm", flag.ExitOnError)
	id := fs.Int64("id", 0, "User identifier")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		msg, err := client.DeleteUser(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	})
}
