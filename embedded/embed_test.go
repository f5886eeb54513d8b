package embedded

import (
	"strings"
	"testing"
)

func TestHelp_CRLF(t *testing.T) {
	h := Help()
	if !strings.HasPrefix(h, "Help:\r\n") {
		t.Errorf("Help() starts %q", h[:10])
	}
	if strings.Contains(strings.ReplaceAll(h, "\r\n", ""), "\n") {
		t.Error("Help() has a bare LF")
	}
	for _, cmd := range []string{"i:", "u:", "S:", "f:", "l:"} {
		if !strings.Contains(h, "\r\n"+cmd) {
			t.Errorf("Help() does not describe %q", cmd)
		}
	}
}
