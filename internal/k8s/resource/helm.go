package resource

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"io"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"strconv"
	"time"
)

// HelmReleaseSelector matches the secrets helm stores releases in. Older revisions are marked superseded by helm,
// so what is left is one record per release.
const HelmReleaseSelector = "owner=helm,status!=superseded"

var gzipMagic = []byte{0x1f, 0x8b, 0x08}

// HelmRelease is the part of a helm release record shown in the table
type HelmRelease struct {
	Name         string
	Namespace    string
	Chart        string
	ChartVersion string
	AppVersion   string
	Status       string
	Revision     int
	Updated      time.Time
}

type helmRecord struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Version   int    `json:"version"`
	Info      struct {
		Status       string    `json:"status"`
		LastDeployed time.Time `json:"last_deployed"`
	} `json:"info"`
	Chart struct {
		Metadata struct {
			Name       string `json:"name"`
			Version    string `json:"version"`
			AppVersion string `json:"appVersion"`
		} `json:"metadata"`
	} `json:"chart"`
}

// DecodeHelmRelease decodes the "release" value of a helm secret as the API serves it: base64 of helm's own
// base64 encoding of a gzipped JSON record
func DecodeHelmRelease(value string) (HelmRelease, error) {
	outer, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return HelmRelease{}, fmt.Errorf("invalid secret data: %w", err)
	}
	b, err := base64.StdEncoding.DecodeString(string(outer))
	if err != nil {
		return HelmRelease{}, fmt.Errorf("invalid release encoding: %w", err)
	}
	if bytes.HasPrefix(b, gzipMagic) {
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return HelmRelease{}, fmt.Errorf("invalid release compression: %w", err)
		}
		defer r.Close()
		if b, err = io.ReadAll(r); err != nil {
			return HelmRelease{}, fmt.Errorf("invalid release compression: %w", err)
		}
	}
	var rec helmRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return HelmRelease{}, fmt.Errorf("invalid release record: %w", err)
	}
	return HelmRelease{
		Name:         rec.Name,
		Namespace:    rec.Namespace,
		Chart:        rec.Chart.Metadata.Name,
		ChartVersion: rec.Chart.Metadata.Version,
		AppVersion:   rec.Chart.Metadata.AppVersion,
		Status:       rec.Info.Status,
		Revision:     rec.Version,
		Updated:      rec.Info.LastDeployed,
	}, nil
}

// helmReleaseRow reads the release record of a helm secret. A record that cannot be decoded still gets a row from
// the labels helm puts on the secret.
func helmReleaseRow(obj *unstructured.Unstructured, row *model.Row, now time.Time) {
	labels := obj.GetLabels()
	rel := HelmRelease{Name: labels["name"], Status: labels["status"], Updated: row.Created}
	rel.Revision, _ = strconv.Atoi(labels["version"])
	chart := none

	if value, _, _ := unstructured.NestedString(obj.Object, "data", "release"); value != "" {
		if decoded, err := DecodeHelmRelease(value); err == nil {
			rel = decoded
			chart = decoded.Chart + "-" + decoded.ChartVersion
		}
	}
	updated := rel.Updated
	if updated.IsZero() {
		updated = row.Created
	}

	row.Status = rel.Status
	row.Cells = []string{
		util.OrDefault(rel.Name, obj.GetName()),
		chart,
		strconv.Itoa(rel.Revision),
		util.OrDefault(rel.AppVersion, none),
		util.OrDefault(rel.Status, "unknown"),
		util.FormatAge(updated, now),
	}
}
