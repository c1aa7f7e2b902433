package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/MrEthical07/authflow/notify"
	"github.com/MrEthical07/authflow/render"
)

const helpText = `commands:
  go <path>                              navigate (e.g. go /register)
  back | forward | reload
  login <email> <password> <answer>      answer the captcha shown
  captcha                                new captcha
  register <name> <email> <pw> <confirm>
  verify <code>                          email or security code, by step
  resend                                 resend the code for this step
  logout | theme | dismiss <id>
  metrics | help | quit`

var errQuit = errors.New("quit")

// screen serializes output. Views published while no command runs, such as
// delayed transitions, are drawn as they arrive.
type screen struct {
	mu    sync.Mutex
	out   io.Writer
	queue *notify.Queue
	busy  bool
}

func (s *screen) draw(v authflow.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawLocked(v)
}

func (s *screen) drawLocked(v authflow.View) {
	fmt.Fprintln(s.out)
	_ = render.Write(s.out, v, s.queue.Active())
}

func (s *screen) observe(v authflow.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		s.drawLocked(v)
	}
}

func (s *screen) setBusy(b bool) {
	s.mu.Lock()
	s.busy = b
	s.mu.Unlock()
}

func (s *screen) prompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, "> ")
}

func (s *screen) println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, a...)
}

type repl struct {
	ctrl    *authflow.Controller
	screen  *screen
	metrics *prometheus.Exporter
}

// run reads commands until EOF or quit. Controller errors have already been
// shown as notifications, so they do not stop the loop.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.screen.draw(r.ctrl.Current())
	sc := bufio.NewScanner(in)
	for {
		r.screen.prompt()
		if !sc.Scan() {
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		r.screen.setBusy(true)
		v, err := r.exec(ctx, fields[0], fields[1:])
		r.screen.setBusy(false)

		switch {
		case errors.Is(err, errQuit):
			return nil
		case errors.Is(err, errUsage):
			r.screen.println(err.Error())
			continue
		case errors.Is(err, authflow.ErrControllerClosed):
			return err
		}
		if v != nil {
			r.screen.draw(*v)
		}
	}
}

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func (r *repl) exec(ctx context.Context, cmd string, args []string) (*authflow.View, error) {
	var (
		v   authflow.View
		err error
	)
	switch cmd {
	case "quit", "exit":
		return nil, errQuit
	case "help":
		r.screen.println(helpText)
		return nil, nil
	case "metrics":
		r.screen.println(r.metrics.Render())
		return nil, nil
	case "go":
		if len(args) != 1 {
			return nil, usage("go <path>")
		}
		v, err = r.ctrl.Navigate(ctx, args[0])
		if errors.Is(err, authflow.ErrInvalidLocation) {
			return nil, usage("go <path>: path must be relative to this app")
		}
	case "back":
		v, err = r.ctrl.Back(ctx)
	case "forward":
		v, err = r.ctrl.Forward(ctx)
	case "reload":
		v, err = r.ctrl.Reload(ctx)
	case "captcha":
		v, err = r.ctrl.RefreshCaptcha()
	case "theme":
		v, err = r.ctrl.ToggleTheme(ctx)
	case "logout":
		v, err = r.ctrl.Logout(ctx)
	case "login":
		if len(args) != 3 {
			return nil, usage("login <email> <password> <answer>")
		}
		form := authflow.LoginForm{Email: args[0], Password: args[1], CaptchaAnswer: args[2]}
		if cur := r.ctrl.Current(); cur.Login != nil {
			form.Challenge = cur.Login.Challenge
		}
		v, err = r.ctrl.SubmitLogin(ctx, form)
	case "register":
		if len(args) < 4 {
			return nil, usage("register <name> <email> <password> <confirm>")
		}
		n := len(args)
		v, err = r.ctrl.SubmitRegister(ctx, authflow.RegisterForm{
			Name:            strings.Join(args[:n-3], " "),
			Email:           args[n-3],
			Password:        args[n-2],
			ConfirmPassword: args[n-1],
		})
	case "verify":
		if len(args) != 1 {
			return nil, usage("verify <code>")
		}
		cur := r.ctrl.Current()
		if cur.Step == authflow.StepVerifySecurity {
			v, err = r.ctrl.SubmitSecurityVerification(ctx, args[0])
		} else {
			v, err = r.ctrl.SubmitEmailVerification(ctx, "", args[0])
		}
	case "resend":
		cur := r.ctrl.Current()
		if cur.Step == authflow.StepVerifySecurity {
			v, err = r.ctrl.ResendSecurityCode(ctx)
		} else {
			v, err = r.ctrl.ResendEmailVerification(ctx, "")
		}
	case "dismiss":
		if len(args) != 1 {
			return nil, usage("dismiss <id>")
		}
		id, perr := strconv.ParseUint(args[0], 10, 64)
		if perr != nil {
			return nil, usage("dismiss <id>: id must be a number")
		}
		r.screen.queue.Dismiss(id)
		v = r.ctrl.Current()
	default:
		return nil, usage("unknown command " + strconv.Quote(cmd) + ", try help")
	}
	return &v, err
}
