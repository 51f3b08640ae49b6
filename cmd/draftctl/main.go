// Command draftctl follows a draft session from the terminal.
//
//	draftctl -server http://localhost:8080 -key ABC123 [-token T]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/client"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "draft server base URL")
	key := flag.String("key", "", "session key")
	token := flag.String("token", "", "optional side or owner token")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "draftctl: -key is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*server, *key, *token, engine.RoleSpectator)
	var mu sync.Mutex
	lastVersion := -1
	err := c.Watch(ctx, func(s types.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Version == lastVersion {
			return
		}
		lastVersion = s.Version
		fmt.Println(render(s))
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "draftctl:", err)
		os.Exit(1)
	}
}

func render(s types.Snapshot) string {
	var b strings.Builder
	st := s.State
	fmt.Fprintf(&b, "v%d %s  %s vs %s  turn %d/%d  %s\n",
		s.Version, st.Mode, st.Names.Blue, st.Names.Red, st.CurrentTurn, len(st.Sequence), s.Derived.Phase)
	for i, slot := range st.Sequence {
		mark := " "
		if i == st.CurrentTurn {
			mark = ">"
		}
		who := "-"
		if i >= len(st.Picks) {
			who = "?"
		} else if p := st.Picks[i]; p != nil {
			who = p.Character
			if slot.Kind == engine.KindPick {
				who = fmt.Sprintf("%s E%d", p.Character, p.Eidolon)
				if p.Lightcone != "" {
					who += fmt.Sprintf(" + %s S%d", p.Lightcone, p.Superimpose)
				}
			}
		}
		fmt.Fprintf(&b, "%s %2d %-4s %-4s %s\n", mark, i, slot.Side, slot.Kind, who)
	}
	for _, side := range []engine.Side{engine.SideBlue, engine.SideRed} {
		t := s.Derived.Totals.Get(side)
		fmt.Fprintf(&b, "%s: cost %.2f  penalty %.2f  timer %d\n", side, t.Cost, t.CostPenalty, t.TimerPenalty)
	}
	return b.String()
}
