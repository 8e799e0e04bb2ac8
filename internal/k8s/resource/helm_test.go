package resource

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"testing"
	"time"
)

const helmRecordJSON = `{
  "name": "ingress",
  "namespace": "infra",
  "version": 3,
  "info": {"status": "deployed", "last_deployed": "2024-05-01T11:00:00Z"},
  "chart": {"metadata": {"name": "ingress-nginx", "version": "4.10.0", "appVersion": "1.10.0"}}
}`

// helmEncode encodes a record the way helm writes it into the secret
func helmEncode(t *testing.T, record string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(record)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return []byte(base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func helmSecret(data []byte) *corev1.Secret {
	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:              "sh.helm.release.v1.ingress.v3",
			Namespace:         "infra",
			UID:               "uid-helm",
			CreationTimestamp: metav1.Time{Time: now.Add(-2 * time.Hour)},
			Labels:            map[string]string{"owner": "helm", "name": "ingress", "status": "deployed", "version": "3"},
		},
		Type: "helm.sh/release.v1",
		Data: map[string][]byte{"release": data},
	}
}

func TestDecodeHelmRelease(t *testing.T) {
	value := base64.StdEncoding.EncodeToString(helmEncode(t, helmRecordJSON))
	got, err := DecodeHelmRelease(value)
	if err != nil {
		t.Fatal(err)
	}
	want := HelmRelease{
		Name:         "ingress",
		Namespace:    "infra",
		Chart:        "ingress-nginx",
		ChartVersion: "4.10.0",
		AppVersion:   "1.10.0",
		Status:       "deployed",
		Revision:     3,
		Updated:      time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	plain := base64.StdEncoding.EncodeToString([]byte(base64.StdEncoding.EncodeToString([]byte(helmRecordJSON))))
	if got, err := DecodeHelmRelease(plain); err != nil || got.Chart != "ingress-nginx" {
		t.Errorf("uncompressed record: %+v, %v", got, err)
	}

	if _, err := DecodeHelmRelease("not base64!"); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestNewRowHelmRelease(t *testing.T) {
	kind := DefaultCatalog().MustLookup("helm")
	if kind.LabelSelector != HelmReleaseSelector || !kind.Managed {
		t.Fatalf("unexpected kind %+v", kind)
	}

	row, err := NewRow(kind, toUnstructured(t, helmSecret(helmEncode(t, helmRecordJSON))), now)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ingress", "ingress-nginx-4.10.0", "3", "1.10.0", "deployed", "1h"}, row.Cells); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}
	if row.Name != "sh.helm.release.v1.ingress.v3" || row.Status != "deployed" {
		t.Errorf("row must keep the secret identity, got %+v", row)
	}
}

func TestNewRowHelmReleaseFallsBackToLabels(t *testing.T) {
	row, err := NewRow(DefaultCatalog().MustLookup("helm"), toUnstructured(t, helmSecret([]byte("garbage"))), now)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ingress", none, "3", none, "deployed", "2h"}, row.Cells); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}
}
