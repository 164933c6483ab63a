// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the platform independent data model shared by the
// resolver, the manifest fetcher and the packaging pipeline: references,
// resolved targets, track manifests, stream selection and source URL ranking.
package media
