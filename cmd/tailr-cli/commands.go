package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/tailrdb/tailr/tailrdb/backend"
)

type migrateCmd struct{}

func (c *migrateCmd) Run(opts *globalOptions) error {
	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Migrate(context.Background()); err != nil {
		return err
	}
	fmt.Println("schema up to date")
	return nil
}

type createUserCmd struct {
	Name string `arg:"" help:"user name"`
}

func (c *createUserCmd) Run(opts *globalOptions) error {
	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.CreateUser(context.Background(), c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (id %d)\n", u.Name, u.ID)
	return nil
}

type createTokenCmd struct {
	User string `arg:"" help:"user name the token belongs to"`
	Desc string `help:"token description" default:"cli"`
}

func (c *createTokenCmd) Run(opts *globalOptions) error {
	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	u, err := s.UserByName(ctx, c.User)
	if err != nil {
		return err
	}

	value := uuid.New().String()
	if err := s.CreateToken(ctx, u.ID, value, c.Desc); err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

type createRepoCmd struct {
	User string `arg:"" help:"owning user name"`
	Name string `arg:"" help:"repository name"`
	Desc string `help:"repository description"`
}

func (c *createRepoCmd) Run(opts *globalOptions) error {
	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	u, err := s.UserByName(ctx, c.User)
	if err != nil {
		return err
	}

	r, err := s.CreateRepo(ctx, u.ID, c.Name, c.Desc)
	if err != nil {
		return err
	}
	fmt.Printf("created repository %s/%s (id %d)\n", u.Name, r.Name, r.ID)
	return nil
}

type listReposCmd struct {
	User string `arg:"" help:"user name"`
}

func (c *listReposCmd) Run(opts *globalOptions) error {
	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	repos, err := s.Repos(context.Background(), c.User)
	if err != nil {
		return err
	}

	return renderRepoTable(os.Stdout, repos)
}

func renderRepoTable(out io.Writer, repos []backend.Repo) error {
	rows := make([][]string, 0, len(repos))
	for _, r := range repos {
		rows = append(rows, []string{fmt.Sprint(r.ID), r.Name, r.Desc})
	}

	w := tablewriter.NewWriter(out)
	w.Header("id", "name", "description")
	if err := w.Bulk(rows); err != nil {
		return err
	}
	return w.Render()
}
