package monitor

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Training Monitor</title>
  <style>
    body { font-family: sans-serif; margin: 1.5rem; background: #111; color: #ddd; }
    a { color: #6ece58; }
    table { border-collapse: collapse; margin-top: 1rem; }
    td, th { border: 1px solid #444; padding: 0.4rem 0.8rem; text-align: left; }
    iframe { border: 1px solid #444; margin-top: 1rem; }
  </style>
</head>
<body>
  <h1>Training Monitor</h1>
  <p>
    <a href="/api/runs">runs (JSON)</a> &middot;
    <a href="/debug/">debug</a> &middot;
    <a href="/healthz">health</a>
  </p>
  <table id="runs">
    <tr><th>run</th><th>created</th><th>status</th><th>best dice</th><th>progress</th></tr>
  </table>
  <iframe id="chart" width="940" height="580" src="about:blank"></iframe>
  <script>
    fetch('/api/runs').then(r => r.json()).then(runs => {
      const table = document.getElementById('runs');
      (runs || []).forEach(run => {
        const tr = document.createElement('tr');
        const best = run.best_metric === undefined ? '-' : run.best_metric.toFixed(4);
        tr.innerHTML = '<td>' + run.run_id + '</td><td>' + run.created_at +
          '</td><td>' + run.status + '</td><td>' + best +
          '</td><td><a href="#" data-run="' + run.run_id + '">chart</a></td>';
        table.appendChild(tr);
      });
      table.addEventListener('click', ev => {
        const id = ev.target.getAttribute && ev.target.getAttribute('data-run');
        if (!id) return;
        ev.preventDefault();
        document.getElementById('chart').src = '/charts/progress?run=' + encodeURIComponent(id);
      });
    });
  </script>
</body>
</html>
`
