package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>CamCapture</title>
<style>
body { font-family: sans-serif; background: #111; color: #eee; margin: 0; padding: 1rem; }
#state { font-size: 1.4rem; font-weight: bold; }
#elapsed { font-size: 2.4rem; font-family: monospace; }
button { font-size: 1rem; margin: .25rem; padding: .6rem 1rem; }
#notice { margin-top: 1rem; white-space: pre-line; color: #fc6; }
li { margin: .2rem 0; }
</style>
</head>
<body>
<div id="state">IDLE</div>
<div id="elapsed">00:00</div>
<div id="clock"></div>
<div id="location"></div>
<div>
  <button onclick="post('/start')">Record</button>
  <button onclick="post('/pause')">Pause</button>
  <button onclick="post('/resume')">Resume</button>
  <button onclick="post('/stop')">Stop</button>
</div>
<div>
  <button onclick="post('/camera/switch')">Switch camera</button>
  <button onclick="post('/settings/resolution/toggle')">Resolution: <span id="res">auto</span></button>
  <button onclick="post('/settings/quality/toggle')">Quality: <span id="quality">medium</span></button>
  <button onclick="toggleLocation()">Location: <span id="loc">off</span></button>
</div>
<div id="notice"></div>
<h3>Recent videos</h3>
<ul id="videos"></ul>
<script>
let tagging = false;
function post(path, body) {
  return fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: body ? JSON.stringify(body) : null})
    .then(r => r.json()).then(j => { if (!j.success) show({title: 'Error', message: j.error}); });
}
function toggleLocation() { post('/settings/location', {enabled: !tagging}); }
function show(n) { document.getElementById('notice').textContent = n.title + ': ' + n.message; }
function render(st) {
  document.getElementById('state').textContent = st.state;
  document.getElementById('elapsed').textContent = st.elapsed;
  document.getElementById('clock').textContent = st.clock || '';
  document.getElementById('res').textContent = st.settings.resolution_tier;
  document.getElementById('quality').textContent = st.settings.quality_tier;
  tagging = st.settings.location_tagging_enabled;
  document.getElementById('loc').textContent = tagging ? 'on' : 'off';
  const l = st.location;
  document.getElementById('location').textContent = l ? (l.address || (l.latitude.toFixed(5) + ', ' + l.longitude.toFixed(5))) : '';
}
function loadVideos() {
  fetch('/api/videos').then(r => r.json()).then(j => {
    const ul = document.getElementById('videos');
    ul.innerHTML = '';
    j.videos.forEach(v => {
      const li = document.createElement('li');
      li.innerHTML = '<a href="' + v.stream_url + '">' + v.filename + '</a> ' + Math.round(v.duration_seconds) + 's ' + v.size_human;
      ul.appendChild(li);
    });
  });
}
function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onopen = () => post('/focus');
  ws.onmessage = e => {
    const m = JSON.parse(e.data);
    if (m.status) render(m.status);
    if (m.notice) { show(m.notice); if (m.notice.kind === 'saved') loadVideos(); }
  };
  ws.onclose = () => setTimeout(connect, 2000);
}
document.addEventListener('visibilitychange', () => post(document.hidden ? '/blur' : '/focus'));
connect();
loadVideos();
</script>
</body>
</html>
`
