package cmd

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"addr":                  "Address the chat server listens on",
	"api":                   "API to use, searched in order when empty",
	"apps":                  "Connected app to load tools from, may be repeated",
	"continue":              "Continue from the last response or a given title or ID",
	"continue-last":         "Continue the last conversation",
	"http-proxy":            "HTTP proxy to use for API requests",
	"log-format":            "Log format: text, json or logfmt",
	"log-level":             "Log level: debug, info, warn or error",
	"max-completion-tokens": "Maximum number of completion tokens for reasoning models",
	"max-steps":             "Maximum number of model calls in one turn",
	"max-tokens":            "Maximum number of tokens in a response",
	"model":                 "Model to use",
	"no-cache":              "Don't save conversations",
	"older-than":            "Age of the conversations to delete, e.g. 24h, 7d, 2w",
	"quiet":                 "Only print the response and errors",
	"raw":                   "Print the raw response without markdown rendering",
	"reasoning":             "Stream reasoning output",
	"system":                "System prompt: text, a file:// path or a URL",
	"temp":                  "Temperature (randomness) of results, from 0.0 to 2.0, -1 to disable",
	"title":                 "Title for the conversation",
	"topk":                  "TopK, only sample from the top K options for each subsequent token, -1 to disable",
	"topp":                  "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0, -1 to disable",
	"user":                  "External user ID whose connected accounts provide tools",
}

// durationFlag is a pflag.Value accepting days and weeks on top of the
// time.ParseDuration units.
type durationFlag time.Duration

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = durationFlag(v)
	return nil
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}

var (
	needsArgRe    = regexp.MustCompile(`^flag needs an argument: (?:'\w' in )?(-{1,2}[\w-]+)$`)
	unknownFlagRe = regexp.MustCompile(`^unknown (?:shorthand )?flag: (?:'\w' in )?(-{1,2}[\w-]+)$`)
	invalidArgRe  = regexp.MustCompile(`^invalid argument ".*" for "(.*)" flag: `)
)

// flagParseError is a flag parsing failure with a reason template and the
// offending flag.
type flagParseError struct {
	err    error
	reason string
	flag   string
}

func newFlagParseError(err error) flagParseError {
	msg := err.Error()
	ferr := flagParseError{err: err, reason: msg}
	if m := needsArgRe.FindStringSubmatch(msg); m != nil {
		ferr.reason, ferr.flag = "Flag %s needs an argument.", m[1]
	} else if m := unknownFlagRe.FindStringSubmatch(msg); m != nil {
		ferr.reason, ferr.flag = "Flag %s is missing.", m[1]
	} else if m := invalidArgRe.FindStringSubmatch(msg); m != nil {
		ferr.reason, ferr.flag = "Flag %s have an invalid argument.", m[1]
	}
	return ferr
}

func (f flagParseError) Error() string { return f.err.Error() }

func (f flagParseError) Unwrap() error { return f.err }

// ReasonFormat is the reason, with a %s verb for the flag when one was
// recognized.
func (f flagParseError) ReasonFormat() string { return f.reason }

// Flag is the offending flag as typed.
func (f flagParseError) Flag() string { return f.flag }
