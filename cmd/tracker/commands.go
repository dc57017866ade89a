package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"studytrack/internal/tracker"
)

const usage = `commands:
  start <subject>            start a session
  plan <plan-id> [name]      start a session for a study plan
  pause | resume             take or end a break
  stop [focus 0-10] [notes]  finish the session
  link <milestone-id> <pct>  credit a milestone on stop
  unlink                     stop crediting a milestone
  status                     show the current session
  quit`

type command struct {
	name      string
	start     tracker.StartRequest
	stop      tracker.StopRequest
	milestone *tracker.MilestoneLink
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}
	cmd := command{name: strings.ToLower(fields[0])}
	args := fields[1:]

	switch cmd.name {
	case "start":
		cmd.start.Subject = strings.Join(args, " ")
	case "plan":
		if len(args) == 0 {
			return command{}, errors.New("plan needs a study plan id")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return command{}, fmt.Errorf("invalid study plan id %q", args[0])
		}
		cmd.start.StudyPlanID = &id
		cmd.start.PlanName = strings.Join(args[1:], " ")
	case "stop":
		if len(args) > 0 {
			if score, err := strconv.Atoi(args[0]); err == nil {
				if score < 0 || score > 10 {
					return command{}, errors.New("focus score must be between 0 and 10")
				}
				cmd.stop.FocusScore = score
				args = args[1:]
			}
		}
		cmd.stop.Notes = strings.Join(args, " ")
	case "link":
		if len(args) != 2 {
			return command{}, errors.New("link needs a milestone id and its current progress")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return command{}, fmt.Errorf("invalid milestone id %q", args[0])
		}
		progress, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
		if err != nil || progress < 0 || progress > 100 {
			return command{}, fmt.Errorf("invalid progress %q", args[1])
		}
		cmd.milestone = &tracker.MilestoneLink{ID: id, Progress: progress}
	case "pause", "resume", "unlink", "status", "quit", "exit", "help":
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	return cmd, nil
}
