// Command chatcli is a line-oriented chatup client.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"chatup/internal/client"
	"chatup/internal/domain"
)

func main() {
	app := &cli.App{
		Name:  "chatcli",
		Usage: "talk to a chatup server from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:5000", EnvVars: []string{"CHATUP_SERVER"}, Usage: "server base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"CHATUP_TOKEN"}, Usage: "access token from signup or login"},
			&cli.BoolFlag{Name: "verbose", Usage: "log socket activity to stderr"},
		},
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "create an account and print its token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "bio"},
				},
				Action: signup,
			},
			{
				Name:  "login",
				Usage: "log in and print a token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: login,
			},
			{
				Name:   "me",
				Usage:  "show the signed-in user",
				Action: me,
			},
			{
				Name:   "contacts",
				Usage:  "list contacts with unseen message counts",
				Action: contacts,
			},
			{
				Name:      "send",
				Usage:     "send one message",
				ArgsUsage: "<user-id> [text]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Usage: "path of an image to attach"},
				},
				Action: send,
			},
			{
				Name:      "chat",
				Usage:     "open a conversation; type lines to send, Ctrl-D to leave",
				ArgsUsage: "<user-id>",
				Action:    chat,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"), client.WithToken(c.String("token")))
}

func newLogger(c *cli.Context) zerolog.Logger {
	if !c.Bool("verbose") {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func signup(c *cli.Context) error {
	api := newClient(c)
	u, err := api.Signup(c.Context, client.SignupRequest{
		Email:    c.String("email"),
		FullName: c.String("name"),
		Password: c.String("password"),
		Bio:      c.String("bio"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\nexport CHATUP_TOKEN=%s\n", u.FullName, u.ID, api.Token())
	return nil
}

func login(c *cli.Context) error {
	api := newClient(c)
	u, err := api.Login(c.Context, c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\nexport CHATUP_TOKEN=%s\n", u.FullName, u.ID, api.Token())
	return nil
}

func me(c *cli.Context) error {
	u, err := newClient(c).Me(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>\nid:  %s\nbio: %s\n", u.FullName, u.Email, u.ID, u.Bio)
	return nil
}

func contacts(c *cli.Context) error {
	users, unseen, err := newClient(c).Contacts(c.Context)
	if err != nil {
		return err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	for _, u := range users {
		line := fmt.Sprintf("%-36s  %s", u.ID, u.FullName)
		if n := unseen[u.ID]; n > 0 {
			line += fmt.Sprintf("  (%d unseen)", n)
		}
		fmt.Println(line)
	}
	return nil
}

func send(c *cli.Context) error {
	peer := c.Args().First()
	if peer == "" {
		return cli.Exit("send needs a user id", 2)
	}
	text := strings.Join(c.Args().Tail(), " ")

	var image string
	if path := c.String("image"); path != "" {
		uri, err := dataURI(path)
		if err != nil {
			return err
		}
		image = uri
	}

	msg, err := newClient(c).Send(c.Context, peer, text, image)
	if err != nil {
		return err
	}
	fmt.Println("sent", msg.ID)
	return nil
}

func chat(c *cli.Context) error {
	peer := c.Args().First()
	if peer == "" {
		return cli.Exit("chat needs a user id", 2)
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := newClient(c)
	self, err := api.Me(ctx)
	if err != nil {
		return err
	}
	log := newLogger(c)

	bus := client.NewBus()
	session := client.NewSession(self.ID, api, bus, log)
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	stream, err := api.Dial(ctx, self.ID, log)
	if err != nil {
		return err
	}
	streamErr := make(chan error, 1)
	go func() { streamErr <- stream.Run(ctx, bus) }()

	view, err := session.Open(ctx, peer)
	if err != nil {
		return err
	}
	defer view.Close()

	names := map[string]string{self.ID: "you"}
	for _, u := range session.Contacts() {
		names[u.ID] = u.FullName
	}
	for _, m := range view.Messages() {
		printMessage(names, m)
	}

	unsubMsg := bus.Subscribe(client.TopicNewMessage, func(p any) {
		if m, ok := p.(*domain.Message); ok && m.SenderID == peer {
			printMessage(names, m)
		}
	})
	defer unsubMsg()
	unsubUnseen := bus.Subscribe(client.TopicUnseen, func(p any) {
		if u, ok := p.(client.UnseenUpdate); ok {
			fmt.Printf("* new message from %s (%d unseen)\n", names[u.PeerID], u.Count)
		}
	})
	defer unsubUnseen()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-streamErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := view.Send(ctx, line, ""); err != nil {
				fmt.Fprintln(os.Stderr, "send failed:", err)
			}
		}
	}
}

func printMessage(names map[string]string, m *domain.Message) {
	who := names[m.SenderID]
	if who == "" {
		who = m.SenderID
	}
	var parts []string
	if m.HasText() {
		parts = append(parts, *m.Text)
	}
	if m.HasImage() {
		parts = append(parts, "[image] "+*m.Image)
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, strings.Join(parts, " "))
}

func dataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
