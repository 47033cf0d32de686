// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogboot

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"cloud.google.com/go/compute/metadata"
)

// Attribute keys produced by RuntimeInfo.Attrs.
const (
	PlatformKey  = "cloud.platform"
	ProjectIDKey = "cloud.project_id"
)

// RuntimeInfo describes the platform the process runs on.
type RuntimeInfo struct {
	Platform  string
	ProjectID string
	Labels    map[string]string
}

// Attrs renders the info as event properties, labels sorted by key.
func (ri RuntimeInfo) Attrs() []slog.Attr {
	var attrs []slog.Attr
	if ri.Platform != "" {
		attrs = append(attrs, slog.String(PlatformKey, ri.Platform))
	}
	if ri.ProjectID != "" {
		attrs = append(attrs, slog.String(ProjectIDKey, ri.ProjectID))
	}
	keys := make([]string, 0, len(ri.Labels))
	for k := range ri.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ri.Labels[k]))
	}
	return attrs
}

// metadataClient is the subset of the compute metadata API used here.
type metadataClient interface {
	OnGCE() bool
	GetWithContext(ctx context.Context, suffix string) (string, error)
}

type computeMetadata struct{}

func (computeMetadata) OnGCE() bool { return metadata.OnGCE() }

func (computeMetadata) GetWithContext(ctx context.Context, suffix string) (string, error) {
	return metadata.GetWithContext(ctx, suffix)
}

var metadataClientFactory = func() metadataClient { return computeMetadata{} }

// DetectRuntimeInfo inspects well-known environment variables and, on Google
// Cloud, the metadata server. ctx bounds the metadata requests; hosts call
// this while building, never on the logging path.
func DetectRuntimeInfo(ctx context.Context, env EnvironmentReader) RuntimeInfo {
	if env == nil {
		env = OSEnvironment
	}
	get := func(key string) string {
		v, _ := env.LookupEnv(key)
		return strings.TrimSpace(v)
	}

	info := RuntimeInfo{
		ProjectID: normalizeProjectID(firstNonEmpty(get("GOOGLE_CLOUD_PROJECT"), get("GCLOUD_PROJECT"), get("GCP_PROJECT"))),
		Labels:    map[string]string{},
	}

	switch {
	case get("K_SERVICE") != "" && get("FUNCTION_TARGET") != "":
		info.Platform = "gcp_cloud_functions"
		info.Labels["faas.name"] = get("K_SERVICE")
		setLabel(info.Labels, "faas.version", get("K_REVISION"))
	case get("K_SERVICE") != "" && get("K_REVISION") != "":
		info.Platform = "gcp_cloud_run"
		info.Labels["service.name"] = get("K_SERVICE")
		info.Labels["service.revision"] = get("K_REVISION")
		setLabel(info.Labels, "service.configuration", get("K_CONFIGURATION"))
	case get("CLOUD_RUN_JOB") != "":
		info.Platform = "gcp_cloud_run_job"
		info.Labels["job.name"] = get("CLOUD_RUN_JOB")
		setLabel(info.Labels, "job.execution", get("CLOUD_RUN_EXECUTION"))
		setLabel(info.Labels, "job.task_index", get("CLOUD_RUN_TASK_INDEX"))
	case get("GAE_SERVICE") != "":
		info.Platform = "gcp_app_engine"
		info.Labels["service.name"] = get("GAE_SERVICE")
		setLabel(info.Labels, "service.version", get("GAE_VERSION"))
		setLabel(info.Labels, "service.instance", get("GAE_INSTANCE"))
	case get("KUBERNETES_SERVICE_HOST") != "":
		info.Platform = "kubernetes"
		setLabel(info.Labels, "k8s.namespace.name", firstNonEmpty(readNamespace(), get("NAMESPACE")))
		setLabel(info.Labels, "k8s.pod.name", firstNonEmpty(get("POD_NAME"), get("HOSTNAME")))
		setLabel(info.Labels, "k8s.container.name", get("CONTAINER_NAME"))
	}

	md := metadataClientFactory()
	if md == nil || !md.OnGCE() {
		return info
	}
	if info.Platform == "" {
		info.Platform = "gcp_compute_engine"
	}
	if info.ProjectID == "" {
		if pid, err := md.GetWithContext(ctx, "project/project-id"); err == nil {
			info.ProjectID = normalizeProjectID(pid)
		}
	}
	if zone, err := md.GetWithContext(ctx, "instance/zone"); err == nil {
		if idx := strings.LastIndex(zone, "/"); idx >= 0 {
			zone = zone[idx+1:]
		}
		setLabel(info.Labels, "cloud.availability_zone", strings.TrimSpace(zone))
	}
	if info.Platform == "kubernetes" {
		if cluster, err := md.GetWithContext(ctx, "instance/attributes/cluster-name"); err == nil {
			setLabel(info.Labels, "k8s.cluster.name", strings.TrimSpace(cluster))
		}
	}
	return info
}

func setLabel(labels map[string]string, key, value string) {
	if value != "" {
		labels[key] = value
	}
}

// firstNonEmpty returns the first non-empty string after trimming whitespace.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizeProjectID strips common prefixes and leading underscores from project IDs.
func normalizeProjectID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "projects/")
	id = strings.TrimPrefix(id, "_")
	return id
}

// readNamespace reads the Kubernetes namespace from the serviceaccount secret.
func readNamespace() string {
	data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
