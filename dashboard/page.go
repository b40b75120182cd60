package dashboard

import "html/template"

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Hausdeck</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; background: #f7f7f7; color: #222; }
h1 { margin-bottom: 0.5rem; }
.status { display: flex; gap: 1rem; align-items: center; margin-bottom: 1rem; font-size: 0.9rem; }
.status .stale { color: #c62828; font-weight: 600; }
.toolbar { display: flex; flex-wrap: wrap; gap: 0.5rem; margin-bottom: 1rem; align-items: center; }
.toolbar input[type=search] { padding: 0.45rem; min-width: 240px; }
.toolbar select { padding: 0.4rem; }
.toolbar button { padding: 0.45rem 1rem; border: none; border-radius: 4px; background: #1976d2; color: #fff; cursor: pointer; }
.toolbar button.danger { background: #c62828; }
.toolbar button:disabled { opacity: 0.5; cursor: not-allowed; }
#notices { margin-bottom: 0.75rem; }
.notice { padding: 0.4rem 0.7rem; border-radius: 4px; margin-bottom: 0.25rem; font-size: 0.85rem; }
.notice.success { background: #e8f5e9; color: #1b5e20; }
.notice.failure { background: #ffebee; color: #b71c1c; }
#list { height: 600px; overflow-y: auto; background: #fff; border: 1px solid #ccc; border-radius: 4px; }
#logsPanel { margin-top: 1rem; font-size: 0.85rem; }
#logs { background: #fff; border: 1px solid #ccc; border-radius: 4px; padding: 0.5rem; max-height: 200px; overflow-y: auto; margin: 0.25rem 0 0; }
#spacer { position: relative; }
.row { position: absolute; left: 0; right: 0; display: flex; gap: 0.75rem; align-items: center; padding: 0.4rem 0.75rem; border-bottom: 1px solid #eee; box-sizing: border-box; }
.row.excluded { color: #888; background: #fafafa; }
.row .name { flex: 1; min-width: 0; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.row .room { width: 160px; color: #555; font-size: 0.85rem; }
.row .state { width: 90px; font-size: 0.85rem; }
.row .pending { font-style: italic; color: #1976d2; }
.row input[type=checkbox] { transform: scale(1.2); }
</style>
</head>
<body>
<h1>Hausdeck</h1>
<div class="status">
<span id="counts"></span>
<span id="interval"></span>
<span id="staleFlag" class="stale" hidden>stale</span>
</div>
<div id="notices"></div>
<div class="toolbar">
<input type="search" id="query" placeholder="Search entities">
<select id="filter"><option value="">All</option></select>
<button id="syncBtn">Sync</button>
<button id="applyBtn">Apply</button>
<button id="linkBtn">Link button</button>
<button id="resetBtn" class="danger">Reset bridge</button>
</div>
<div id="list"><div id="spacer"></div></div>
<details id="logsPanel"><summary>Bridge logs</summary><pre id="logs"></pre></details>
<script>
const list = document.getElementById('list');
const spacer = document.getElementById('spacer');
const queryInput = document.getElementById('query');
const filterSelect = document.getElementById('filter');
const countsBox = document.getElementById('counts');
const intervalBox = document.getElementById('interval');
const staleFlag = document.getElementById('staleFlag');
const noticesBox = document.getElementById('notices');
const logsPanel = document.getElementById('logsPanel');
const logsBox = document.getElementById('logs');
let fetching = false;
let filtersLoaded = false;

function escapeHtml(value) {
  return String(value === null || value === undefined ? '' : value)
    .replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;')
    .replace(/"/g, '&quot;').replace(/'/g, '&#39;');
}

async function fetchView() {
  if (fetching) { return; }
  fetching = true;
  try {
    const params = new URLSearchParams({
      q: queryInput.value,
      filter: filterSelect.value,
      offset: String(list.scrollTop),
      height: String(list.clientHeight)
    });
    const res = await fetch('/api/view?' + params.toString());
    if (!res.ok) { return; }
    renderView(await res.json());
  } finally {
    fetching = false;
  }
}

function renderView(view) {
  staleFlag.hidden = !view.stale;
  spacer.style.height = (view.window.total || 0) + 'px';
  spacer.innerHTML = '';
  (view.rows || []).forEach(function(row) {
    const ent = row.entity;
    const el = document.createElement('div');
    el.className = 'row' + (ent.included ? '' : ' excluded');
    el.style.top = row.offset + 'px';
    el.style.minHeight = row.size + 'px';
    el.dataset.index = row.index;
    const nameClass = row.alias_pending ? 'name pending' : 'name';
    el.innerHTML = ''
      + '<input type="checkbox" ' + (ent.included ? 'checked' : '') + (row.busy ? ' disabled' : '') + '>'
      + '<span class="' + nameClass + '">' + escapeHtml(ent.name) + '</span>'
      + '<span class="room">' + escapeHtml(ent.room_name) + '</span>'
      + '<span class="state">' + escapeHtml(ent.state) + '</span>';
    el.querySelector('input').addEventListener('change', function(event) {
      updateEntity(ent.entity_id, { included: event.target.checked });
    });
    spacer.appendChild(el);
    reportSize(row.index, el.offsetHeight, row.size);
  });
}

function reportSize(index, actual, assumed) {
  if (!actual || Math.abs(actual - assumed) < 0.5) { return; }
  fetch('/api/measure', {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify({ index: index, size: actual })
  }).then(function(res) { return res.json(); }).then(function(body) {
    if (body && typeof body.offset === 'number' && Math.abs(list.scrollTop - body.offset) > 0.5) {
      list.scrollTop = body.offset;
    }
  });
}

async function updateEntity(id, body) {
  await fetch('/api/entities/' + encodeURIComponent(id), {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify(body)
  });
  fetchView();
}

async function runAction(name) {
  await fetch('/api/actions/' + name, { method: 'POST' });
  fetchState();
}

async function fetchState() {
  const res = await fetch('/api/state');
  if (!res.ok) { return; }
  const state = await res.json();
  if (state.snapshot) {
    countsBox.textContent = state.snapshot.included + ' / ' + state.snapshot.total_entities + ' entities included';
  }
  intervalBox.textContent = 'poll every ' + Math.round(state.sync.interval_ms) + ' ms';
  staleFlag.hidden = !state.sync.last_error;
  noticesBox.innerHTML = '';
  (state.notices || []).forEach(function(notice) {
    const el = document.createElement('div');
    el.className = 'notice ' + notice.kind;
    el.textContent = notice.label + (notice.message ? ': ' + notice.message : ' ok');
    noticesBox.appendChild(el);
  });
  if (!filtersLoaded && Array.isArray(state.presets)) {
    ['all', 'lights', 'switches', 'sensors', 'included', 'hidden', 'unavailable']
      .concat(state.presets)
      .forEach(function(id) {
        const option = document.createElement('option');
        option.value = id;
        option.textContent = id;
        filterSelect.appendChild(option);
      });
    filtersLoaded = true;
  }
}

async function fetchLogs() {
  if (!logsPanel.open) { return; }
  const res = await fetch('/api/logs');
  if (!res.ok) { return; }
  const body = await res.json();
  logsBox.textContent = (body.logs || []).join('\n');
}

list.addEventListener('scroll', fetchView);
logsPanel.addEventListener('toggle', fetchLogs);
queryInput.addEventListener('input', fetchView);
filterSelect.addEventListener('change', fetchView);
document.getElementById('syncBtn').addEventListener('click', function() { runAction('sync'); });
document.getElementById('applyBtn').addEventListener('click', function() { runAction('apply'); });
document.getElementById('linkBtn').addEventListener('click', function() { runAction('linkbutton'); });
document.getElementById('resetBtn').addEventListener('click', function() {
  if (confirm('Reset the bridge? All Hue pairings are lost.')) { runAction('reset-bridge'); }
});

fetchState();
fetchView();
setInterval(fetchState, 2000);
setInterval(fetchView, 2000);
setInterval(fetchLogs, 2000);
</script>
</body>
</html>`))
