package mailer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvitationHTML_EscapesNames(t *testing.T) {
	out := invitationHTML("http://app.test", Invite{
		To:        "b@x.io",
		ClubTitle: "<Sci-Fi>",
		InvitedBy: "ana & co",
		Code:      "ABCD-EF23",
	})
	require.Contains(t, out, "&lt;Sci-Fi&gt;")
	require.Contains(t, out, "ana &amp; co")
	require.Contains(t, out, "http://app.test/invitations/ABCD-EF23")
}

func TestLogSender(t *testing.T) {
	s := NewLog(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.SendInvitation(context.Background(), Invite{To: "a@x.io"}))
}
