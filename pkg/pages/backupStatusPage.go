package pages

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
)

// BackupStatusPageData holds data for the backup status page
type BackupStatusPageData struct {
	Backups         []catalog.Entry
	S3Enabled       bool
	LastUpdated     time.Time
	FilterStatus    string
	FilterStartDate string
	FilterEndDate   string
	FilterSearch    string
}

// BackupStatusPage renders the backup status page
func BackupStatusPage(w http.ResponseWriter, r *http.Request) {
	// Create a new template based on the common template
	tmpl := generateCommonTemplate()
	if tmpl == nil {
		http.Error(w, "Failed to generate template", http.StatusInternalServerError)
		return
	}

	// Add page-specific template
	contentTemplate := `
{{define "content"}}
<!-- Filters -->
<div class="card mb-4">
    <div class="card-header">
        Filter Backups
    </div>
    <div class="card-body">
        <form method="GET" action="/status/backups" class="row g-3">
            <div class="col-md-3">
                <label for="status" class="form-label">Status</label>
                <select class="form-select" id="status" name="status">
                    <option value="" {{if eq .Content.FilterStatus ""}}selected{{end}}>All</option>
                    <option value="present" {{if eq .Content.FilterStatus "present"}}selected{{end}}>Present</option>
                    <option value="missing" {{if eq .Content.FilterStatus "missing"}}selected{{end}}>Missing</option>
                </select>
            </div>
            <div class="col-md-3">
                <label for="search" class="form-label">Search</label>
                <input type="text" class="form-control" id="search" name="search" placeholder="File name" value="{{.Content.FilterSearch}}">
            </div>
            <div class="col-md-2">
                <label for="startDate" class="form-label">From</label>
                <input type="date" class="form-control" id="startDate" name="startDate" value="{{.Content.FilterStartDate}}">
            </div>
            <div class="col-md-2">
                <label for="endDate" class="form-label">To</label>
                <input type="date" class="form-control" id="endDate" name="endDate" value="{{.Content.FilterEndDate}}">
            </div>
            <div class="col-md-2 d-flex align-items-end">
                <button type="submit" class="btn btn-primary me-2">Apply</button>
                <a href="/status/backups" class="btn btn-outline-secondary">Clear</a>
            </div>
        </form>
    </div>
</div>

<!-- Backup Table -->
<div class="card">
    <div class="card-header d-flex justify-content-between align-items-center">
        <span>Backup Files ({{len .Content.Backups}})</span>
        <button class="btn btn-sm btn-outline-primary" id="run-rescan">Rescan</button>
    </div>
    <div class="card-body">
        {{if .Content.Backups}}
        <div class="table-responsive">
            <table class="table table-striped table-hover">
                <thead>
                    <tr>
                        <th>File</th>
                        <th>Modified</th>
                        <th>Size</th>
                        <th>First Seen</th>
                        <th>Status</th>
                        <th>Actions</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Content.Backups}}
                    <tr>
                        <td><code>{{.FileName}}</code></td>
                        <td>{{formatTime .ModTime}} <small class="text-muted">({{timeAgo .ModTime}})</small></td>
                        <td>{{formatBytes .Size}}</td>
                        <td>{{formatTime .FirstSeen}}</td>
                        <td>
                            <span class="badge status-badge {{if eq .Status "present"}}bg-success{{else}}bg-danger{{end}}">
                                {{.Status}}
                            </span>
                            {{if .S3Key}}<span class="badge status-badge bg-info">archived</span>{{end}}
                        </td>
                        <td>
                            {{if eq .Status "present"}}
                            <a href="/api/v1/backups/download?id={{.ID}}" class="btn btn-sm btn-outline-secondary">Download</a>
                            {{if and $.Content.S3Enabled (not .S3Key)}}
                            <button class="btn btn-sm btn-outline-info archive-btn" data-id="{{.ID}}">Archive</button>
                            {{end}}
                            {{else if .S3Key}}
                            <button class="btn btn-sm btn-outline-secondary s3-download-btn" data-id="{{.ID}}">Download from S3</button>
                            {{else}}
                            <span class="text-muted">unavailable</span>
                            {{end}}
                        </td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{else}}
        <p class="card-text text-muted">No backup files match the current filters.</p>
        {{end}}
    </div>
</div>

<!-- JavaScript for actions -->
<script>
document.addEventListener('DOMContentLoaded', () => {
    document.getElementById('run-rescan').addEventListener('click', async () => {
        const button = document.getElementById('run-rescan');
        button.disabled = true;

        try {
            const response = await fetch('/api/v1/scan', {
                method: 'POST'
            });

            const result = await response.json();
            alert(result.message);
            if (response.status === 202) {
                setTimeout(() => window.location.reload(), 1000);
            }
        } catch (error) {
            alert('Error: ' + error.message);
        } finally {
            button.disabled = false;
        }
    });

    document.querySelectorAll('.archive-btn').forEach((button) => {
        button.addEventListener('click', async () => {
            button.disabled = true;

            try {
                const response = await fetch('/api/v1/backups/archive?id=' + button.dataset.id, {
                    method: 'POST'
                });

                const result = await response.json();
                if (response.ok) {
                    window.location.reload();
                } else {
                    alert(result.message);
                    button.disabled = false;
                }
            } catch (error) {
                alert('Error: ' + error.message);
                button.disabled = false;
            }
        });
    });

    document.querySelectorAll('.s3-download-btn').forEach((button) => {
        button.addEventListener('click', async () => {
            try {
                const response = await fetch('/api/v1/backups/download?id=' + button.dataset.id);
                const result = await response.json();

                if (response.ok && result.data && result.data.url) {
                    window.location.href = result.data.url;
                } else {
                    alert(result.message || 'Download unavailable');
                }
            } catch (error) {
                alert('Error: ' + error.message);
            }
        });
    });
});
</script>
{{end}}
`
	var err error
	tmpl, err = tmpl.Parse(contentTemplate)
	if err != nil {
		http.Error(w, "Template parsing error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Get filter parameters
	filterStatus := r.URL.Query().Get("status")
	filterStartDate := r.URL.Query().Get("startDate")
	filterEndDate := r.URL.Query().Get("endDate")
	filterSearch := r.URL.Query().Get("search")

	// Get data for the page
	var data BackupStatusPageData
	data.Backups = []catalog.Entry{}

	if catalog.DefaultStore != nil {
		entries := catalog.DefaultStore.GetEntriesFiltered(catalog.Status(filterStatus))

		// Parse date filters
		var startDate, endDate time.Time
		if filterStartDate != "" {
			startDate, _ = time.Parse("2006-01-02", filterStartDate)
		}
		if filterEndDate != "" {
			endDate, _ = time.Parse("2006-01-02", filterEndDate)
			// Add 23:59:59 to include the entire end date
			endDate = endDate.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		}

		var finalEntries []catalog.Entry
		for _, entry := range entries {
			// Apply date range filter
			if !startDate.IsZero() && entry.ModTime.Before(startDate) {
				continue
			}
			if !endDate.IsZero() && entry.ModTime.After(endDate) {
				continue
			}

			// Apply search filter (case-insensitive)
			if filterSearch != "" {
				searchLower := strings.ToLower(filterSearch)
				if !strings.Contains(strings.ToLower(entry.FileName), searchLower) {
					continue
				}
			}

			finalEntries = append(finalEntries, entry)
		}

		// Newest first
		sort.Slice(finalEntries, func(i, j int) bool {
			return finalEntries[i].ModTime.After(finalEntries[j].ModTime)
		})

		data.Backups = finalEntries
	}

	// Set filter values for the form
	data.FilterStatus = filterStatus
	data.FilterStartDate = filterStartDate
	data.FilterEndDate = filterEndDate
	data.FilterSearch = filterSearch

	data.S3Enabled = config.CFG.Backups.S3.Enabled
	data.LastUpdated = time.Now()

	// Render the template
	renderTemplate(w, tmpl, "/status/backups", PageData{
		Title:       "Backup Status",
		Description: "All backup files of the experiments database",
		Content:     data,
	})
}
