package chatideactl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chatidea/chatidea/internal/chat"
)

const quitCommand = "quit"

func runNewSession(ctx context.Context, env *runEnv, _ []string) error {
	id, raw, err := env.newSession(ctx)
	if err != nil {
		return err
	}
	if env.rawJSON {
		env.printJSON(raw)
		return nil
	}
	_, _ = fmt.Fprintln(env.stdout, id)
	return nil
}

func runSay(ctx context.Context, env *runEnv, args []string) error {
	reply, raw, err := env.say(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if env.rawJSON {
		env.printJSON(raw)
		return nil
	}
	renderReply(env, reply)
	return nil
}

// runChat opens a session and relays stdin lines. A number picks the button
// with that index from the last reply.
func runChat(ctx context.Context, env *runEnv, _ []string) error {
	session, _, err := env.newSession(ctx)
	if err != nil {
		return err
	}
	reply, _, err := env.say(ctx, session, "/start")
	if err != nil {
		return err
	}
	renderReply(env, reply)

	scanner := bufio.NewScanner(env.stdin)
	for {
		_, _ = fmt.Fprint(env.stdout, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(env.stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == quitCommand:
			return nil
		}
		text := line
		if index, err := strconv.Atoi(line); err == nil && index >= 1 && index <= len(reply.Buttons) {
			text = reply.Buttons[index-1].Payload
		}
		next, _, err := env.say(ctx, session, text)
		if err != nil {
			_, _ = fmt.Fprintf(env.stderr, "%v\n", err)
			continue
		}
		reply = next
		renderReply(env, reply)
	}
}

func runHistory(ctx context.Context, env *runEnv, args []string) error {
	raw, err := env.do(ctx, http.MethodGet, sessionPath(args[0])+"/history", nil)
	if err != nil {
		return err
	}
	env.printJSON(raw)
	return nil
}

func runReset(ctx context.Context, env *runEnv, args []string) error {
	if _, err := env.do(ctx, http.MethodDelete, sessionPath(args[0]), nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.stdout, "session %s reset\n", args[0])
	return nil
}

func (e *runEnv) newSession(ctx context.Context) (string, []byte, error) {
	raw, err := e.do(ctx, http.MethodPost, "/v1/sessions", nil)
	if err != nil {
		return "", nil, err
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", nil, fmt.Errorf("decode session: %w", err)
	}
	if created.SessionID == "" {
		return "", nil, fmt.Errorf("server returned no session id")
	}
	return created.SessionID, raw, nil
}

func (e *runEnv) say(ctx context.Context, session, text string) (chat.Response, []byte, error) {
	raw, err := e.do(ctx, http.MethodPost, sessionPath(session)+"/messages", map[string]string{"text": text})
	if err != nil {
		return chat.Response{}, nil, err
	}
	var reply chat.Response
	if err := json.Unmarshal(raw, &reply); err != nil {
		return chat.Response{}, nil, fmt.Errorf("decode reply: %w", err)
	}
	return reply, raw, nil
}

func renderReply(env *runEnv, reply chat.Response) {
	for _, message := range reply.Messages {
		_, _ = fmt.Fprintln(env.stdout, message)
	}
	for i, button := range reply.Buttons {
		_, _ = fmt.Fprintf(env.stdout, "  [%d] %s\n", i+1, button.Title)
	}
}

func sessionPath(session string) string {
	return "/v1/sessions/" + url.PathEscape(strings.TrimSpace(session))
}
