package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"

	apiclient "github.com/splax/todos/pkg/api/client"
)

func commandTodos(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: todo todos <list|add|update|done|rm>")
	}
	switch args[0] {
	case "list":
		return todosList(args[1:])
	case "add":
		return todosAdd(args[1:])
	case "update":
		return todosUpdate(args[1:])
	case "done":
		return todosDone(args[1:])
	case "rm", "delete":
		return todosRemove(args[1:])
	default:
		return fmt.Errorf("unknown todos subcommand %q", args[0])
	}
}

// withClient loads the saved session and runs fn with a bounded context.
func withClient(fn func(context.Context, *apiclient.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(&cfg, true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, client)
}

func printTodo(t apiclient.Todo) {
	mark := " "
	if t.IsDone {
		mark = "x"
	}
	fmt.Printf("%d\t[%s]\t%s\n", t.ID, mark, t.Name)
}

func todosList(args []string) error {
	fs := flag.NewFlagSet("todos list", flag.ExitOnError)
	fs.Parse(args)

	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		todos, err := client.ListTodos(ctx)
		if apiclient.IsStatus(err, http.StatusNotFound) {
			fmt.Println("no todos yet")
			return nil
		}
		if err != nil {
			return err
		}
		for _, t := range todos {
			printTodo(t)
		}
		return nil
	})
}

func todosAdd(args []string) error {
	fs := flag.NewFlagSet("todos add", flag.ExitOnError)
	name := fs.String("name", "", "To-do name (3-30 characters)")
	done := fs.Bool("done", false, "Create the to-do already completed")
	fs.Parse(args)

	if *name == "" {
		return errors.New("--name is required")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		todo, err := client.AddTodo(ctx, *name, *done)
		if err != nil {
			return err
		}
		printTodo(todo)
		return nil
	})
}

func todosUpdate(args []string) error {
	fs := flag.NewFlagSet("todos update", flag.ExitOnError)
	id := fs.Int64("id", 0, "To-do identifier")
	name := fs.String("name", "", "New name")
	done := fs.Bool("done", false, "Completion state")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	var input apiclient.TodoUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			input.Name = name
		case "done":
			input.IsDone = done
		}
	})
	if input.Name == nil && input.IsDone == nil {
		return errors.New("nothing to update, pass --name and/or --done")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		todo, err := client.UpdateTodo(ctx, *id, input)
		if err != nil {
			return err
		}
		printTodo(todo)
		return nil
	})
}

func todosDone(args []string) error {
	fs := flag.NewFlagSet("todos done", flag.ExitOnError)
	id := fs.Int64("id", 0, "To-do identifier")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	done := true
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		todo, err := client.UpdateTodo(ctx, *id, apiclient.TodoUpdate{IsDone: &done})
		if err != nil {
			return err
		}
		printTodo(todo)
		return nil
	})
}

func todosRemove(args []string) error {
	fs := flag.NewFlagSet("todos rm", flag.ExitOnError)
	id := fs.Int64("id", 0, "To-do identifier")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	return withClient(func(ctx context.Context, client *apiclient.Client) error {
		msg, err := client.DeleteTodo(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	})
}
