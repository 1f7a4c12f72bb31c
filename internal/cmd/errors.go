package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
)

func handleError(w io.Writer, err error) {
	drainStdin()

	styles := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		reason := ferr.ReasonFormat()
		if ferr.Flag() != "" {
			reason = fmt.Sprintf(reason, styles.InlineCode.Render(ferr.Flag()))
		}
		fmt.Fprintf(w, format+"%s\n\n",
			fmt.Sprintf("Check out %s %s", styles.InlineCode.Render("connectchat -h"), styles.Comment.Render("for help.")),
			reason,
		)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		args := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), merr.Reason)}
		if !errors.Is(merr.Err, huh.ErrUserAborted) && merr.Err != nil {
			format += "%s\n\n"
			args = append(args, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
		}
		fmt.Fprintf(w, format, args...)
		return
	}

	fmt.Fprintf(w, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
