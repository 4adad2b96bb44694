package signal

import "testing"

func TestCloseReasonCodes(t *testing.T) {
	cases := []struct {
		reason CloseReason
		code   int
		text   string
	}{
		{CloseInvalidState, 1002, "Command executed in invalid state"},
		{CloseInvalidData, 1003, "Unable to parse data"},
		{CloseServerError, 1011, "Internal Server Error"},
		{CloseUnauthorized, 4001, "Invalid token"},
		{CloseKicked, 4003, "You have been kicked!"},
		{CloseRoomClosed, 4004, "Room has been closed"},
	}
	for _, c := range cases {
		if c.reason.Code() != c.code {
			t.Fatalf("%s: expected code %d, got %d", c.text, c.code, c.reason.Code())
		}
		if c.reason.Error() != c.text {
			t.Fatalf("code %d: expected reason %q, got %q", c.code, c.text, c.reason.Error())
		}
	}
}
