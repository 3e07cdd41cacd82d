package http

import nethttp "net/http"

func dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path != "/" {
		nethttp.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>ChemViz Equipment Dashboard</title>
  <style>
    @import url("https://fonts.googleapis.com/css?family=Open+Sans:300,400,600,700");

    :root {
      --cv-teal: #0e6f5c;
      --cv-teal-2: #0f8a71;
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
      --line-soft: #eee;
      --head: #f0f0f0;
      --ok-bg: #dff0d8;
      --ok-text: #3c763d;
      --bad-bg: #f2dede;
      --bad-text: #a94442;
      --warn-bg: #fcf8e3;
      --warn-text: #8a6d3b;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: "Open Sans", "Helvetica Neue", Helvetica, Arial, sans-serif;
      font-size: 14px;
      line-height: 1.42857143;
    }

    a { color: #428bca; text-decoration: none; }
    a:hover { color: #2a6496; text-decoration: underline; }

    header {
      background: linear-gradient(to right, var(--cv-teal) 0, var(--cv-teal-2) 100%);
      border-bottom: 1px solid #0a5b4b;
      box-shadow: 0 2px 5px rgba(0, 0, 0, 0.15);
    }

    .container {
      margin-right: auto;
      margin-left: auto;
      padding-left: 15px;
      padding-right: 15px;
      width: 100%;
      max-width: 1280px;
    }

    .header-inner {
      min-height: 64px;
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 16px;
    }

    .navbar-brand {
      color: #fff;
      font-size: 22px;
      font-weight: 300;
      letter-spacing: 0.2px;
    }

    .navbar-brand strong { font-weight: 600; }

    .navbar-note {
      color: rgba(255, 255, 255, 0.88);
      font-size: 13px;
      font-weight: 300;
      text-align: right;
    }

    .navbar-note button {
      margin-left: 10px;
      border: 1px solid rgba(255, 255, 255, 0.6);
      background: transparent;
      color: #fff;
      padding: 4px 10px;
      font-size: 12px;
      cursor: pointer;
    }

    main { padding: 18px 0 32px; }

    .tabs {
      display: flex;
      gap: 8px;
      margin-bottom: 14px;
      border-bottom: 1px solid var(--line);
      padding-bottom: 8px;
    }

    .tab-btn {
      border: 1px solid #bcd9d0;
      background: #f0faf7;
      color: var(--cv-teal);
      padding: 6px 12px;
      font-size: 12px;
      font-weight: 600;
      cursor: pointer;
    }

    .tab-btn.active {
      background: var(--cv-teal);
      color: #fff;
      border-color: var(--cv-teal);
    }

    .tab-pane { display: none; }
    .tab-pane.active { display: block; }

    .panel {
      background: var(--paper);
      border: 1px solid var(--line);
      box-shadow: 0 1px 2px rgba(0, 0, 0, 0.05);
      padding: 16px;
      margin-bottom: 16px;
    }

    h1 {
      margin: 0 0 12px;
      font-size: 26px;
      font-weight: 300;
      border-bottom: 1px solid var(--line-soft);
      padding-bottom: 8px;
      color: #444;
    }

    h2 {
      margin: 0 0 10px;
      font-size: 18px;
      font-weight: 400;
      color: #444;
      border-bottom: 1px solid var(--line-soft);
      padding-bottom: 6px;
    }

    table {
      width: 100%;
      border-collapse: collapse;
      font-size: 13px;
    }

    th, td {
      text-align: left;
      padding: 7px 8px;
      border-bottom: 1px solid var(--line-soft);
      vertical-align: top;
    }

    th { background: var(--head); font-weight: 600; }

    tr.clickable { cursor: pointer; }
    tr.clickable:hover td { background: #f3faf8; }
    tr.selected td { background: #e4f4ef; }

    .pill {
      display: inline-block;
      padding: 1px 8px;
      font-size: 11px;
      font-weight: 600;
      border-radius: 9px;
    }

    .pill.ok { background: var(--ok-bg); color: var(--ok-text); }
    .pill.bad { background: var(--bad-bg); color: var(--bad-text); }
    .pill.warn { background: var(--warn-bg); color: var(--warn-text); }

    .kpi-grid {
      display: grid;
      grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
      gap: 12px;
      margin-bottom: 16px;
    }

    .kpi {
      background: var(--paper);
      border: 1px solid var(--line);
      padding: 12px 14px;
    }

    .kpi .kpi-label {
      font-size: 11px;
      font-weight: 600;
      text-transform: uppercase;
      color: var(--muted);
      letter-spacing: 0.4px;
    }

    .kpi .kpi-value {
      font-size: 28px;
      font-weight: 300;
      color: var(--cv-teal);
      margin-top: 4px;
    }

    .chart-row {
      display: grid;
      grid-template-columns: repeat(auto-fit, minmax(320px, 1fr));
      gap: 16px;
    }

    canvas { max-width: 100%; background: #fff; border: 1px solid var(--line-soft); }

    .muted { color: var(--muted); }

    .form-row { margin-bottom: 10px; }
    .form-row label { display: block; font-size: 12px; font-weight: 600; margin-bottom: 4px; }
    .form-row input[type="text"],
    .form-row input[type="password"] {
      width: 100%;
      padding: 7px 9px;
      border: 1px solid var(--line);
      font-size: 13px;
    }

    .btn {
      border: 1px solid var(--cv-teal);
      background: var(--cv-teal);
      color: #fff;
      padding: 7px 16px;
      font-size: 13px;
      font-weight: 600;
      cursor: pointer;
    }

    .btn.secondary {
      background: #fff;
      color: var(--cv-teal);
    }

    .btn:disabled { opacity: 0.5; cursor: default; }

    .login-wrap {
      max-width: 380px;
      margin: 48px auto;
    }

    .flash {
      margin: 10px 0;
      padding: 8px 10px;
      font-size: 13px;
      display: none;
    }

    .flash.bad { display: block; background: var(--bad-bg); color: var(--bad-text); }
    .flash.ok { display: block; background: var(--ok-bg); color: var(--ok-text); }
    .flash.warn { display: block; background: var(--warn-bg); color: var(--warn-text); }

    .dropzone {
      border: 2px dashed var(--line);
      padding: 28px;
      text-align: center;
      color: var(--muted);
      margin-bottom: 12px;
    }

    .legend { font-size: 12px; margin-top: 8px; }
    .legend .swatch {
      display: inline-block;
      width: 10px;
      height: 10px;
      margin-right: 5px;
    }
  </style>
</head>
<body>
  <header>
    <div class="container header-inner">
      <div class="navbar-brand">ChemViz <strong>Equipment Dashboard</strong></div>
      <div class="navbar-note" id="header-note"></div>
    </div>
  </header>

  <main class="container">
    <div id="login-section" class="login-wrap panel" style="display:none">
      <h1 id="auth-title">Sign in</h1>
      <div id="auth-flash" class="flash"></div>
      <div class="form-row">
        <label for="auth-username">Username</label>
        <input type="text" id="auth-username" autocomplete="username" />
      </div>
      <div class="form-row">
        <label for="auth-password">Password</label>
        <input type="password" id="auth-password" autocomplete="current-password" />
      </div>
      <button class="btn" id="auth-submit" onclick="submitAuth()">Sign in</button>
      <button class="btn secondary" id="auth-toggle" onclick="toggleAuthMode()">Need an account?</button>
    </div>

    <div id="app-section" style="display:none">
      <div class="tabs">
        <button class="tab-btn" data-tab="dashboard" onclick="switchTab('dashboard', true)">Dashboard</button>
        <button class="tab-btn" data-tab="upload" onclick="switchTab('upload', true)">Upload</button>
        <button class="tab-btn" data-tab="datatable" onclick="switchTab('datatable', true)">Data Table</button>
        <button class="tab-btn" data-tab="history" onclick="switchTab('history', true)">History</button>
        <button class="tab-btn" data-tab="reports" onclick="switchTab('reports', true)">Reports</button>
      </div>

      <div id="stale-flash" class="flash"></div>

      <div id="tab-dashboard" class="tab-pane">
        <div class="panel" id="dashboard-empty" style="display:none">
          <h2>No dataset yet</h2>
          <p class="muted">Upload an equipment CSV to see statistics and charts here.</p>
        </div>
        <div id="dashboard-body" style="display:none">
          <div class="kpi-grid">
            <div class="kpi"><div class="kpi-label">Equipment count</div><div class="kpi-value" id="kpi-count">-</div></div>
            <div class="kpi"><div class="kpi-label">Avg pressure</div><div class="kpi-value" id="kpi-pressure">-</div></div>
            <div class="kpi"><div class="kpi-label">Avg temperature</div><div class="kpi-value" id="kpi-temp">-</div></div>
            <div class="kpi"><div class="kpi-label">Equipment types</div><div class="kpi-value" id="kpi-types">-</div></div>
          </div>
          <div class="chart-row">
            <div class="panel">
              <h2>Pressure by reading</h2>
              <canvas id="pressure-chart" width="520" height="220"></canvas>
            </div>
            <div class="panel">
              <h2>Temperature by reading</h2>
              <canvas id="temp-chart" width="520" height="220"></canvas>
            </div>
            <div class="panel">
              <h2>Type distribution</h2>
              <canvas id="type-chart" width="260" height="220"></canvas>
              <div class="legend" id="type-legend"></div>
            </div>
          </div>
          <div class="panel">
            <h2>Current dataset</h2>
            <p class="muted" id="dashboard-meta"></p>
          </div>
        </div>
      </div>

      <div id="tab-upload" class="tab-pane">
        <div class="panel">
          <h2>Upload equipment CSV</h2>
          <div id="upload-flash" class="flash"></div>
          <div class="dropzone" id="upload-dropzone">
            <p id="upload-filename">Choose a CSV file with Equipment Name, Type, Flowrate, Pressure and Temperature columns.</p>
            <input type="file" id="upload-file" accept=".csv" />
          </div>
          <div class="panel" id="preflight-panel" style="display:none">
            <h2>Local preview</h2>
            <p class="muted">Quick summary computed before upload. Server results are authoritative.</p>
            <table>
              <tbody>
                <tr><th>Rows</th><td id="pf-rows">-</td></tr>
                <tr><th>Avg pressure</th><td id="pf-pressure">-</td></tr>
                <tr><th>Avg temperature</th><td id="pf-temp">-</td></tr>
                <tr><th>Types</th><td id="pf-types">-</td></tr>
              </tbody>
            </table>
          </div>
          <button class="btn" id="upload-submit" onclick="submitUpload()">Upload and analyze</button>
        </div>
      </div>

      <div id="tab-datatable" class="tab-pane">
        <div class="panel">
          <h2>Recent entries</h2>
          <p class="muted" id="datatable-meta"></p>
          <table>
            <thead>
              <tr><th>Equipment Name</th><th>Type</th><th>Flowrate</th><th>Pressure</th><th>Temperature</th></tr>
            </thead>
            <tbody id="datatable-body"></tbody>
          </table>
        </div>
      </div>

      <div id="tab-history" class="tab-pane">
        <div class="panel">
          <h2>Upload history</h2>
          <p class="muted">Click a row to open that dataset on the dashboard.</p>
          <table>
            <thead>
              <tr><th>Filename</th><th>Uploaded</th><th>Rows</th><th>Avg pressure</th><th>Avg temperature</th></tr>
            </thead>
            <tbody id="history-body"></tbody>
          </table>
        </div>
      </div>

      <div id="tab-reports" class="tab-pane">
        <div class="panel">
          <h2>PDF reports</h2>
          <div id="report-flash" class="flash"></div>
          <table>
            <thead>
              <tr><th>Filename</th><th>Uploaded</th><th></th></tr>
            </thead>
            <tbody id="reports-body"></tbody>
          </table>
        </div>
        <div class="panel">
          <h2>Recent activity</h2>
          <table>
            <thead>
              <tr><th>When</th><th>Action</th><th>Detail</th></tr>
            </thead>
            <tbody id="activity-body"></tbody>
          </table>
        </div>
      </div>
    </div>
  </main>

  <script>
    const text = (id, v) => document.getElementById(id).textContent = v;
    const q = (s) => document.querySelector(s);
    const qq = (s) => Array.from(document.querySelectorAll(s));

    const TOKEN_KEY = 'access_token';
    let registerMode = false;
    let currentState = null;

    function token() {
      return localStorage.getItem(TOKEN_KEY) || '';
    }

    function authHeaders(extra) {
      const h = Object.assign({}, extra || {});
      const t = token();
      if (t) h['Authorization'] = 'Bearer ' + t;
      return h;
    }

    async function getJSON(url) {
      const r = await fetch(url, { headers: authHeaders() });
      if (r.status === 401) { onSessionExpired(); throw new Error('unauthenticated'); }
      if (!r.ok) throw new Error(url + ' -> ' + r.status);
      return r.json();
    }

    async function postJSON(url, body) {
      const r = await fetch(url, {
        method: 'POST',
        headers: authHeaders({ 'Content-Type': 'application/json' }),
        body: JSON.stringify(body || {}),
      });
      if (r.status === 401 && token()) { onSessionExpired(); throw new Error('unauthenticated'); }
      return r;
    }

    function onSessionExpired() {
      localStorage.removeItem(TOKEN_KEY);
      currentState = null;
      showLogin('Session expired, please sign in again.');
    }

    function flash(id, kind, msg) {
      const el = document.getElementById(id);
      el.className = 'flash' + (kind ? ' ' + kind : '');
      el.textContent = msg || '';
    }

    function showLogin(message) {
      q('#login-section').style.display = 'block';
      q('#app-section').style.display = 'none';
      text('header-note', '');
      if (message) flash('auth-flash', 'warn', message);
    }

    function showApp(username) {
      q('#login-section').style.display = 'none';
      q('#app-section').style.display = 'block';
      const note = q('#header-note');
      note.innerHTML = (username ? 'Signed in as <strong>' + escapeHTML(username) + '</strong>' : 'Signed in') +
        '<button onclick="logout()">Sign out</button>';
    }

    function escapeHTML(s) {
      const div = document.createElement('div');
      div.textContent = String(s == null ? '' : s);
      return div.innerHTML;
    }

    function toggleAuthMode() {
      registerMode = !registerMode;
      text('auth-title', registerMode ? 'Create account' : 'Sign in');
      text('auth-submit', registerMode ? 'Register' : 'Sign in');
      text('auth-toggle', registerMode ? 'Back to sign in' : 'Need an account?');
      flash('auth-flash', '', '');
    }

    async function submitAuth() {
      const username = q('#auth-username').value.trim();
      const password = q('#auth-password').value;
      if (!username || !password) {
        flash('auth-flash', 'bad', 'Username and password are required.');
        return;
      }

      const url = registerMode ? '/api/v1/auth/register' : '/api/v1/auth/login';
      try {
        const r = await postJSON(url, { username, password });
        const body = await r.json();
        if (!r.ok) {
          flash('auth-flash', 'bad', body.error || 'Request failed.');
          return;
        }
        if (registerMode) {
          toggleAuthMode();
          flash('auth-flash', 'ok', body.message || 'Account created, you can log in now.');
          return;
        }
        localStorage.setItem(TOKEN_KEY, body.token);
        currentState = body.state;
        showApp(body.username);
        renderState();
      } catch (e) {
        flash('auth-flash', 'bad', 'Could not reach the dashboard service.');
      }
    }

    async function logout() {
      try { await postJSON('/api/v1/auth/logout', {}); } catch (e) { /* best effort */ }
      localStorage.removeItem(TOKEN_KEY);
      currentState = null;
      registerMode = false;
      showLogin('');
      flash('auth-flash', '', '');
    }

    function switchTab(tab, persist) {
      qq('.tab-btn[data-tab]').forEach((b) => b.classList.toggle('active', b.dataset.tab === tab));
      q('#tab-dashboard').classList.toggle('active', tab === 'dashboard');
      q('#tab-upload').classList.toggle('active', tab === 'upload');
      q('#tab-datatable').classList.toggle('active', tab === 'datatable');
      q('#tab-history').classList.toggle('active', tab === 'history');
      q('#tab-reports').classList.toggle('active', tab === 'reports');
      if (tab === 'dashboard') loadCharts();
      if (tab === 'history') loadHistory();
      if (tab === 'reports') loadReports();
      if (persist) {
        postJSON('/api/v1/view', { view: tab }).catch(() => {});
      }
    }

    function renderState() {
      if (!currentState) return;
      renderStale(currentState.stale);
      renderCurrentDataset(currentState.current);
      renderHistoryRows(currentState.history || []);
      switchTab(currentState.active_view || 'dashboard', false);
    }

    function renderStale(stale) {
      if (stale) {
        flash('stale-flash', 'warn', 'History may be out of date: the last refresh from the analysis service failed.');
      } else {
        flash('stale-flash', '', '');
      }
    }

    function renderCurrentDataset(d) {
      const empty = !d;
      q('#dashboard-empty').style.display = empty ? 'block' : 'none';
      q('#dashboard-body').style.display = empty ? 'none' : 'block';
      const body = q('#datatable-body');
      body.innerHTML = '';
      if (empty) {
        text('datatable-meta', 'No dataset selected.');
        return;
      }

      const st = d.stats || {};
      text('kpi-count', String(st.count ?? 0));
      text('kpi-pressure', fmtNum(st.avg_pressure));
      text('kpi-temp', fmtNum(st.avg_temp));
      text('kpi-types', String(Object.keys(st.types || {}).length));
      text('dashboard-meta', d.filename + ' uploaded ' + d.date);
      text('datatable-meta', 'First rows of ' + d.filename + '.');

      (st.recent_entries || []).forEach((e) => {
        const tr = document.createElement('tr');
        tr.innerHTML =
          '<td>' + escapeHTML(e['Equipment Name']) + '</td>' +
          '<td>' + escapeHTML(e['Type']) + '</td>' +
          '<td>' + fmtNum(e['Flowrate']) + '</td>' +
          '<td>' + fmtNum(e['Pressure']) + '</td>' +
          '<td>' + fmtNum(e['Temperature']) + '</td>';
        body.appendChild(tr);
      });
    }

    function fmtNum(v) {
      const n = Number(v);
      if (!Number.isFinite(n)) return '-';
      return (Math.round(n * 100) / 100).toString();
    }

    async function loadCharts() {
      try {
        const res = await getJSON('/api/v1/charts');
        if (res.empty) return;
        const charts = res.charts || {};
        drawSeries(q('#pressure-chart'), toXY(charts.pressure_trend), '#0e6f5c');
        drawSeries(q('#temp-chart'), toXY(charts.temperature_series), '#cb4b16');
        drawDonut(q('#type-chart'), charts.type_shares || []);
        renderTypeLegend(charts.type_shares || []);
      } catch (e) { /* charts stay blank when the fetch fails */ }
    }

    function toXY(points) {
      return (points || []).map((p) => ({ x: p.label, y: Number(p.value) }));
    }

    const donutColors = ['#0e6f5c', '#0971b2', '#cb4b16', '#6f42c1', '#b58900', '#dc3545', '#20c997', '#6c757d'];

    function renderTypeLegend(shares) {
      const legend = q('#type-legend');
      legend.innerHTML = shares.map((s, i) =>
        '<div><span class="swatch" style="background:' + donutColors[i % donutColors.length] + '"></span>' +
        escapeHTML(s.label) + ' &middot; ' + s.count + ' (' + s.percent + '%)</div>'
      ).join('');
    }

    function drawSeries(canvas, series, color) {
      const c = canvas.getContext('2d');
      const w = canvas.width, h = canvas.height;
      c.clearRect(0, 0, w, h);
      c.fillStyle = '#fff';
      c.fillRect(0, 0, w, h);

      const pad = 24;
      const all = series.map((p) => p.y).filter(Number.isFinite);
      const max = Math.max(1, ...all);

      c.strokeStyle = '#eee';
      for (let i = 0; i < 4; i++) {
        const y = pad + ((h - pad * 2) * i / 3);
        c.beginPath();
        c.moveTo(pad, y);
        c.lineTo(w - pad, y);
        c.stroke();
      }

      if (!series.length) return;
      c.strokeStyle = color;
      c.lineWidth = 2;
      c.beginPath();
      series.forEach((p, i) => {
        const x = pad + ((w - pad * 2) * (series.length === 1 ? 0 : i / (series.length - 1)));
        const y = h - pad - ((h - pad * 2) * (p.y / max));
        if (i === 0) c.moveTo(x, y); else c.lineTo(x, y);
      });
      c.stroke();
    }

    function drawDonut(canvas, shares) {
      const c = canvas.getContext('2d');
      const w = canvas.width, h = canvas.height;
      c.clearRect(0, 0, w, h);
      const cx = w / 2, cy = h / 2;
      const outer = Math.min(w, h) / 2 - 8;
      const total = shares.reduce((acc, s) => acc + Number(s.count || 0), 0);
      if (total <= 0) return;

      let start = -Math.PI / 2;
      shares.forEach((s, i) => {
        const frac = Number(s.count || 0) / total;
        const end = start + frac * Math.PI * 2;
        c.beginPath();
        c.moveTo(cx, cy);
        c.arc(cx, cy, outer, start, end);
        c.closePath();
        c.fillStyle = donutColors[i % donutColors.length];
        c.fill();
        start = end;
      });

      c.beginPath();
      c.arc(cx, cy, outer * 0.55, 0, Math.PI * 2);
      c.fillStyle = '#fff';
      c.fill();
    }

    async function loadHistory() {
      try {
        const res = await getJSON('/api/v1/datasets');
        renderStale(res.stale);
        renderHistoryRows(res.history || []);
      } catch (e) { /* keep the previous rows */ }
    }

    function renderHistoryRows(items) {
      const body = q('#history-body');
      body.innerHTML = '';
      items.forEach((d) => {
        const st = d.stats || {};
        const tr = document.createElement('tr');
        tr.className = 'clickable';
        tr.innerHTML =
          '<td>' + escapeHTML(d.filename) + '</td>' +
          '<td>' + escapeHTML(d.date) + '</td>' +
          '<td>' + (st.count ?? '-') + '</td>' +
          '<td>' + fmtNum(st.avg_pressure) + '</td>' +
          '<td>' + fmtNum(st.avg_temp) + '</td>';
        tr.onclick = () => selectDataset(d.id);
        body.appendChild(tr);
      });
    }

    async function selectDataset(id) {
      try {
        const r = await postJSON('/api/v1/datasets/' + encodeURIComponent(String(id)) + '/select', {});
        const body = await r.json();
        if (!r.ok) return;
        currentState = body.state;
        renderState();
      } catch (e) { /* ignore */ }
    }

    async function loadReports() {
      try {
        const res = await getJSON('/api/v1/datasets?refresh=false');
        const body = q('#reports-body');
        body.innerHTML = '';
        (res.history || []).forEach((d) => {
          const tr = document.createElement('tr');
          tr.innerHTML =
            '<td>' + escapeHTML(d.filename) + '</td>' +
            '<td>' + escapeHTML(d.date) + '</td>' +
            '<td><button class="btn secondary" onclick="downloadReport(' + Number(d.id) + ', this)">Download PDF</button></td>';
          body.appendChild(tr);
        });
      } catch (e) { /* ignore */ }
      loadActivity();
    }

    async function loadActivity() {
      try {
        const res = await getJSON('/api/v1/activity');
        const body = q('#activity-body');
        body.innerHTML = '';
        (res.activity || []).forEach((a) => {
          const tr = document.createElement('tr');
          tr.innerHTML =
            '<td>' + escapeHTML(a.created_at) + '</td>' +
            '<td><span class="pill ok">' + escapeHTML(a.action) + '</span></td>' +
            '<td>' + escapeHTML(a.detail || '') + '</td>';
          body.appendChild(tr);
        });
      } catch (e) { /* activity is optional */ }
    }

    async function downloadReport(id, btn) {
      flash('report-flash', '', '');
      if (btn) btn.disabled = true;
      try {
        const r = await fetch('/api/v1/reports/' + encodeURIComponent(String(id)), { headers: authHeaders() });
        if (r.status === 401) { onSessionExpired(); return; }
        if (!r.ok) {
          const body = await r.json().catch(() => ({}));
          flash('report-flash', 'bad', body.error || 'Report download failed.');
          return;
        }
        const blob = await r.blob();
        const dispo = r.headers.get('Content-Disposition') || '';
        const match = dispo.match(/filename="?([^";]+)"?/);
        const a = document.createElement('a');
        a.href = URL.createObjectURL(blob);
        a.download = match ? match[1] : 'Report_dataset_' + id + '.pdf';
        document.body.appendChild(a);
        a.click();
        a.remove();
        URL.revokeObjectURL(a.href);
      } catch (e) {
        flash('report-flash', 'bad', 'Report download failed.');
      } finally {
        if (btn) btn.disabled = false;
      }
    }

    async function onFileSelected() {
      const input = q('#upload-file');
      flash('upload-flash', '', '');
      q('#preflight-panel').style.display = 'none';
      if (!input.files || !input.files.length) return;

      const f = input.files[0];
      text('upload-filename', f.name);

      const fd = new FormData();
      fd.append('file', f);
      try {
        const r = await fetch('/api/v1/uploads/preflight', { method: 'POST', headers: authHeaders(), body: fd });
        if (r.status === 401) { onSessionExpired(); return; }
        const body = await r.json();
        if (!r.ok) {
          flash('upload-flash', 'bad', body.error || 'The file could not be previewed.');
          return;
        }
        const pf = body.preflight || {};
        text('pf-rows', String(pf.rows ?? 0));
        text('pf-pressure', fmtNum(pf.avg_pressure));
        text('pf-temp', fmtNum(pf.avg_temp));
        text('pf-types', Object.entries(pf.types || {}).map(([k, v]) => k + ' (' + v + ')').join(', ') || '-');
        q('#preflight-panel').style.display = 'block';
      } catch (e) {
        flash('upload-flash', 'warn', 'Preview unavailable, you can still upload.');
      }
    }

    async function submitUpload() {
      const input = q('#upload-file');
      if (!input.files || !input.files.length) {
        flash('upload-flash', 'bad', 'Select a CSV file first.');
        return;
      }

      const fd = new FormData();
      fd.append('file', input.files[0]);
      q('#upload-submit').disabled = true;
      try {
        const r = await fetch('/api/v1/datasets', { method: 'POST', headers: authHeaders(), body: fd });
        if (r.status === 401) { onSessionExpired(); return; }
        const body = await r.json();
        if (!r.ok) {
          flash('upload-flash', 'bad', body.error || 'Upload failed.');
          return;
        }
        input.value = '';
        q('#preflight-panel').style.display = 'none';
        currentState = body.state;
        flash('upload-flash', 'ok', 'Uploaded and analyzed ' + body.dataset.filename + '.');
        renderState();
      } catch (e) {
        flash('upload-flash', 'bad', 'Could not reach the dashboard service.');
      } finally {
        q('#upload-submit').disabled = false;
      }
    }

    async function boot() {
      if (!token()) {
        showLogin('');
        return;
      }
      try {
        const res = await getJSON('/api/v1/state');
        currentState = res.state;
        showApp(res.username);
        renderState();
      } catch (e) {
        // getJSON already routed 401s to the login card.
      }
    }

    q('#upload-file').addEventListener('change', onFileSelected);
    document.addEventListener('keydown', (e) => {
      if (e.key === 'Enter' && q('#login-section').style.display !== 'none') submitAuth();
    });

    boot();
  </script>
</body>
</html>
`
