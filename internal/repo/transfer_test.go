package repo

import "testing"

func TestSplitRemoteURL(t *testing.T) {
	cases := []struct {
		url       string
		namespace string
		name      string
		wantErr   bool
	}{
		{url: "https://hub.oxen.ai/repos/acme/dataset", namespace: "acme", name: "dataset"},
		{url: "http://localhost:8080/repos/ns/repo-name", namespace: "ns", name: "repo-name"},
		{url: "https://hub.oxen.ai/no-repos-path", wantErr: true},
		{url: "https://hub.oxen.ai/repos/acme", wantErr: true},
	}
	for _, c := range cases {
		ns, name, err := splitRemoteURL(c.url)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected an error", c.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", c.url, err)
			continue
		}
		if ns != c.namespace || name != c.name {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", c.url, ns, name, c.namespace, c.name)
		}
	}
}

func TestRemoteClient_UnknownRemoteFails(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.remoteClient("origin"); err == nil {
		t.Fatal("expected remoteClient to fail for an unconfigured remote name")
	}
}
