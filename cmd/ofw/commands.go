package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/kherry/ofw-client/pkg/api"
	"github.com/kherry/ofw-client/pkg/auth"
	"github.com/kherry/ofw-client/pkg/config"
	"github.com/kherry/ofw-client/pkg/ofw"
)

// buildClient wires the facade for the account named by --account or the
// resolved credentials. The manager's credential source falls back to an
// interactive prompt so a bare `ofw messages` works on a fresh machine.
func buildClient(ctx context.Context, c *cli.Context) (*ofw.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	account := c.GlobalString("account")
	if account == "" {
		if creds, err := config.ResolveCredentials(); err == nil {
			account = creds.Username
		}
	}
	if account == "" {
		return nil, fmt.Errorf("no account: pass --account or store credentials (ofw credentials set)")
	}

	return ofw.Connect(ctx, cfg, account, ofw.WithManagerOptions(
		auth.WithCredentialSource(func() (config.Credentials, error) {
			if creds, err := config.ResolveCredentials(); err == nil {
				return creds, nil
			}
			return promptCredentials()
		}),
	))
}

func loginAction(ctx context.Context, c *cli.Context) error {
	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}

	session, err := client.Manager.GetSession(ctx, client.Account(), auth.WithForceRefresh())
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s\n", client.Account())
	if cache, ok := client.Manager.Cache().(*auth.FileCache); ok {
		fmt.Printf("token cached at %s\n", cache.Path(client.Account()))
	}
	fmt.Printf("session %s active\n", session.ID())
	return nil
}

func logoutAction(ctx context.Context, c *cli.Context) error {
	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}
	if err := client.Logout(ctx); err != nil {
		return err
	}
	fmt.Printf("logged out %s\n", client.Account())
	return nil
}

func statusAction(ctx context.Context, c *cli.Context) error {
	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}

	rec, valid, err := client.Manager.Check(ctx, client.Account())
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("%s: no cached token\n", client.Account())
		return nil
	}

	state := "rejected by server"
	if valid {
		state = "accepted by server"
	}
	fmt.Printf("%s: token cached %s, %s\n", client.Account(), rec.CachedAt.Format("2006-01-02 15:04:05 MST"), state)
	return nil
}

func foldersAction(ctx context.Context, c *cli.Context) error {
	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}

	folders, err := client.Folders(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tUNREAD\tTOTAL")
	for _, f := range folders.All() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", f.ID(), f.Name(), f.FolderType, f.UnreadMessageCount, f.TotalMessageCount)
	}
	return w.Flush()
}

func messagesAction(ctx context.Context, c *cli.Context) error {
	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}

	if c.Bool("unread") {
		unread, err := client.Unread(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d unread\n", unread)
		return nil
	}

	page, err := client.Messages(ctx, api.ListMessagesOptions{
		FolderID: c.Int("folder"),
		Page:     c.Int("page"),
		Size:     c.Int("size"),
		Match:    c.String("match"),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tREAD\tSUBJECT")
	for _, m := range page.Data {
		read := " "
		if !m.Read {
			read = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.SentDate, m.Author.Name, read, m.Subject)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("page %d", page.Metadata.Page)
	if page.Metadata.Last {
		fmt.Printf(" (last)")
	}
	fmt.Println()
	return nil
}

func readAction(ctx context.Context, c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: ofw read <message-id>")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message ID %q", c.Args().First())
	}

	client, err := buildClient(ctx, c)
	if err != nil {
		return err
	}

	msg, err := client.Message(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("From:    %s\n", msg.Author.Name)
	fmt.Printf("Date:    %s\n", msg.SentDate)
	fmt.Printf("Subject: %s\n", msg.Subject)
	for _, f := range msg.Files {
		fmt.Printf("File:    %s (%d bytes)\n", f.Name, f.Size)
	}
	fmt.Printf("\n%s\n", msg.Body)
	return nil
}

func credentialsSetAction(c *cli.Context) error {
	creds, err := promptCredentials()
	if err != nil {
		return err
	}
	if err := config.SaveCredentialsToKeyring(creds); err != nil {
		return err
	}
	fmt.Printf("stored credentials for %s in the OS keyring\n", creds.Username)
	return nil
}

func credentialsClearAction(c *cli.Context) error {
	if err := config.ClearKeyringCredentials(); err != nil {
		return err
	}
	fmt.Println("cleared stored credentials")
	return nil
}
