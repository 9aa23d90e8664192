package pages

import (
	"net/http"
	"sort"
	"time"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
)

// DashboardData holds data for the dashboard page
type DashboardData struct {
	Stats          map[string]interface{}
	RecentBackups  []catalog.Entry
	BackupDir      string
	S3Enabled      bool
	RescanSchedule string
	LastUpdated    time.Time
}

// DefaultPage renders the main dashboard
func DefaultPage(w http.ResponseWriter, r *http.Request) {
	// Create a new template based on the common template
	tmpl := generateCommonTemplate()
	if tmpl == nil {
		http.Error(w, "Failed to generate template", http.StatusInternalServerError)
		return
	}

	// Add page-specific template
	contentTemplate := `
{{define "content"}}
<div class="row">
    <!-- Summary Cards -->
    <div class="col-md-4">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Backups</h5>
                <p class="display-4">{{.Content.Stats.totalCount}}</p>
                <div class="text-muted">Cataloged backup files</div>
            </div>
        </div>
    </div>
    <div class="col-md-4">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Storage</h5>
                <p class="display-4">{{formatBytes .Content.Stats.totalSize}}</p>
                <div class="text-muted">Total backup size on disk</div>
            </div>
        </div>
    </div>
    <div class="col-md-4">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Newest Backup</h5>
                {{if .Content.Stats.newestBackup}}
                <p class="card-text">{{timeAgo .Content.Stats.newestBackup}}</p>
                <div class="text-muted">{{formatTime .Content.Stats.newestBackup}}</div>
                {{else}}
                <p class="card-text text-muted">No backups found yet</p>
                {{end}}
            </div>
        </div>
    </div>
</div>

<!-- Status Counts -->
<div class="row mt-4">
    {{range $status, $count := .Content.Stats.statusCounts}}
    <div class="col-md-3">
        <div class="card">
            <div class="card-body {{if eq $status "present"}}bg-success-light{{else if eq $status "missing"}}bg-danger-light{{else}}bg-warning-light{{end}}">
                <h5 class="card-title">{{$status}}</h5>
                <p class="display-4">{{$count}}</p>
            </div>
        </div>
    </div>
    {{end}}
    <div class="col-md-3">
        <div class="card">
            <div class="card-body bg-info-light">
                <h5 class="card-title">archived to S3</h5>
                <p class="display-4">{{.Content.Stats.archivedCount}}</p>
            </div>
        </div>
    </div>
</div>

<!-- Recent Backups -->
<div class="row mt-4">
    <div class="col-12">
        <div class="card">
            <div class="card-header">
                Recent Backups
            </div>
            <div class="card-body">
                {{if .Content.RecentBackups}}
                <div class="table-responsive">
                    <table class="table table-striped table-hover">
                        <thead>
                            <tr>
                                <th>File</th>
                                <th>Modified</th>
                                <th>Size</th>
                                <th>Status</th>
                            </tr>
                        </thead>
                        <tbody>
                            {{range .Content.RecentBackups}}
                            <tr>
                                <td>{{.FileName}}</td>
                                <td>{{formatTime .ModTime}}</td>
                                <td>{{formatBytes .Size}}</td>
                                <td>
                                    <span class="badge {{if eq .Status "present"}}bg-success{{else}}bg-danger{{end}}">
                                        {{.Status}}
                                    </span>
                                    {{if .S3Key}}<span class="badge bg-info">archived</span>{{end}}
                                </td>
                            </tr>
                            {{end}}
                        </tbody>
                    </table>
                </div>
                <a href="/status/backups" class="btn btn-sm btn-primary">View All Backups</a>
                {{else}}
                <p class="card-text text-muted">No backup files have been cataloged yet.</p>
                {{end}}
            </div>
        </div>
    </div>
</div>

<!-- Catalog Info -->
<div class="row mt-4">
    <div class="col-12">
        <div class="card">
            <div class="card-header">
                Catalog
            </div>
            <div class="card-body">
                <dl class="row mb-0">
                    <dt class="col-sm-3">Backup directory</dt>
                    <dd class="col-sm-9"><code>{{.Content.BackupDir}}</code></dd>
                    <dt class="col-sm-3">Rescan schedule</dt>
                    <dd class="col-sm-9"><code>{{.Content.RescanSchedule}}</code></dd>
                    <dt class="col-sm-3">S3 archiving</dt>
                    <dd class="col-sm-9">{{if .Content.S3Enabled}}enabled{{else}}disabled{{end}}</dd>
                    <dt class="col-sm-3">Last scan</dt>
                    <dd class="col-sm-9">
                        {{if .Content.Stats.lastScanTime.IsZero}}never{{else}}{{timeAgo .Content.Stats.lastScanTime}}{{end}}
                    </dd>
                </dl>
            </div>
        </div>
    </div>
</div>

<!-- Quick Actions -->
<div class="row mt-4">
    <div class="col-12">
        <div class="card">
            <div class="card-header">
                Quick Actions
            </div>
            <div class="card-body">
                <div class="d-flex gap-2 flex-wrap">
                    <button class="btn btn-outline-primary btn-sm" id="run-rescan">
                        Rescan Backup Directory
                    </button>
                </div>
            </div>
        </div>
    </div>
</div>

<!-- JavaScript for actions -->
<script>
document.addEventListener('DOMContentLoaded', () => {
    document.getElementById('run-rescan').addEventListener('click', async () => {
        const button = document.getElementById('run-rescan');
        button.disabled = true;
        button.textContent = 'Scanning...';

        try {
            const response = await fetch('/api/v1/scan', {
                method: 'POST'
            });

            const result = await response.json();
            alert(result.message);
        } catch (error) {
            alert('Error: ' + error.message);
        } finally {
            button.disabled = false;
            button.textContent = 'Rescan Backup Directory';
        }
    });
});
</script>
{{end}}
`
	var err error
	tmpl, err = tmpl.Parse(contentTemplate)
	if err != nil {
		http.Error(w, "Template parsing error", http.StatusInternalServerError)
		return
	}

	// Get data for the dashboard
	var dashboardData DashboardData

	dashboardData.Stats = map[string]interface{}{
		"totalCount":    0,
		"totalSize":     int64(0),
		"archivedCount": 0,
		"lastScanTime":  time.Time{},
		"statusCounts": map[string]int{
			string(catalog.StatusPresent): 0,
			string(catalog.StatusMissing): 0,
		},
	}

	if catalog.DefaultStore != nil {
		if stats := catalog.DefaultStore.GetStats(); stats != nil {
			dashboardData.Stats = stats
		}

		// Show the five most recently modified backups.
		entries := catalog.DefaultStore.GetEntries()
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].ModTime.After(entries[j].ModTime)
		})
		if len(entries) > 5 {
			entries = entries[:5]
		}
		dashboardData.RecentBackups = entries
	}

	dashboardData.BackupDir = config.CFG.Backups.Directory
	dashboardData.S3Enabled = config.CFG.Backups.S3.Enabled
	dashboardData.RescanSchedule = config.CFG.Server.RescanSchedule
	dashboardData.LastUpdated = time.Now()

	// Render the template
	renderTemplate(w, tmpl, "/", PageData{
		Title:       "Dashboard",
		Description: "Current status of the experiments database backups",
		Content:     dashboardData,
	})
}
