package pages

import (
	"net/http"
	"strconv"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
)

// ExperimentsPageData holds data for the experiments page
type ExperimentsPageData struct {
	Limit    int
	Provider string
}

// ExperimentsPage renders the experiments listing. The table is loaded
// from the API so the page stays up even when the database is down.
func ExperimentsPage(w http.ResponseWriter, r *http.Request) {
	// Create a new template based on the common template
	tmpl := generateCommonTemplate()
	if tmpl == nil {
		http.Error(w, "Failed to generate template", http.StatusInternalServerError)
		return
	}

	// Add page-specific template
	contentTemplate := `
{{define "content"}}
<div class="card">
    <div class="card-header d-flex justify-content-between align-items-center">
        <span>Registered Experiments</span>
        <div>
            <label for="limit" class="me-2">Show</label>
            <select id="limit" class="form-select form-select-sm d-inline-block" style="width: auto;">
                <option value="50" {{if eq .Content.Limit 50}}selected{{end}}>50</option>
                <option value="100" {{if eq .Content.Limit 100}}selected{{end}}>100</option>
                <option value="500" {{if eq .Content.Limit 500}}selected{{end}}>500</option>
            </select>
        </div>
    </div>
    <div class="card-body">
        <div id="experimentsError" class="alert alert-warning d-none" role="alert"></div>
        <div class="table-responsive">
            <table class="table table-striped table-hover">
                <thead>
                    <tr>
                        <th>ID</th>
                        <th>User Defined ID</th>
                        <th>Parameters</th>
                    </tr>
                </thead>
                <tbody id="experimentsBody">
                    <tr><td colspan="3" class="text-center">
                        <div class="spinner-border" role="status"><span class="visually-hidden">Loading...</span></div>
                    </td></tr>
                </tbody>
            </table>
        </div>
        <div class="text-muted" id="experimentsCount"></div>
    </div>
</div>

<script>
function loadExperiments() {
    const limit = document.getElementById('limit').value;
    const tableBody = document.getElementById('experimentsBody');
    const errorBox = document.getElementById('experimentsError');

    tableBody.innerHTML = '<tr><td colspan="3" class="text-center"><div class="spinner-border" role="status"><span class="visually-hidden">Loading...</span></div></td></tr>';
    errorBox.classList.add('d-none');

    fetch('/api/v1/experiments?limit=' + limit)
        .then(response => response.json().then(body => ({status: response.status, body: body})))
        .then(({status, body}) => {
            if (status !== 200 || !body.success) {
                tableBody.innerHTML = '';
                errorBox.textContent = body.message || 'Failed to load experiments';
                errorBox.classList.remove('d-none');
                return;
            }

            const experiments = body.data.experiments || [];
            if (experiments.length === 0) {
                tableBody.innerHTML = '<tr><td colspan="3" class="text-center text-muted">No experiments recorded yet.</td></tr>';
            } else {
                tableBody.innerHTML = experiments.map(exp =>
                    '<tr>' +
                    '<td>' + exp.experimentId + '</td>' +
                    '<td><code>' + exp.userDefinedId + '</code></td>' +
                    '<td>' + exp.parameterCount + '</td>' +
                    '</tr>'
                ).join('');
            }
            document.getElementById('experimentsCount').textContent =
                'Showing ' + body.data.count + ' experiment(s), newest first';
        })
        .catch(error => {
            tableBody.innerHTML = '';
            errorBox.textContent = 'Error loading experiments: ' + error.message;
            errorBox.classList.remove('d-none');
        });
}

document.addEventListener('DOMContentLoaded', () => {
    loadExperiments();
    document.getElementById('limit').addEventListener('change', loadExperiments);
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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}

	data := ExperimentsPageData{
		Limit:    limit,
		Provider: config.CFG.Database.Provider,
	}

	// Render the template
	renderTemplate(w, tmpl, "/experiments", PageData{
		Title:       "Experiments",
		Description: "Experiments registered in the " + data.Provider + " database",
		Content:     data,
	})
}
