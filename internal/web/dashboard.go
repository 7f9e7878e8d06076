package web

// dashboardHTML is the embedded page for the miner's status dashboard.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>eore miner</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
body{background:#0d1117;color:#c9d1d9;font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;padding:24px;min-height:100vh}
h1{font-size:1.5rem;font-weight:600;color:#f0f6fc;margin-bottom:4px}
.subtitle{color:#8b949e;font-size:0.85rem;margin-bottom:24px;word-break:break-all}
.subtitle span{color:#58a6ff}
.stats{display:grid;grid-template-columns:repeat(auto-fit,minmax(180px,1fr));gap:16px;margin-bottom:24px}
.card{background:#161b22;border:1px solid #30363d;border-radius:8px;padding:20px}
.card .label{color:#8b949e;font-size:0.75rem;text-transform:uppercase;letter-spacing:0.5px;margin-bottom:8px}
.card .value{font-size:1.5rem;font-weight:700;color:#f0f6fc;font-family:"SF Mono",Consolas,Menlo,monospace}
.card h2{font-size:0.9rem;font-weight:600;color:#f0f6fc;margin-bottom:12px}
table{width:100%;border-collapse:collapse}
th{text-align:left;color:#8b949e;font-size:0.7rem;text-transform:uppercase;letter-spacing:0.5px;padding:6px 8px;border-bottom:1px solid #30363d}
td{padding:8px;font-size:0.8rem;border-bottom:1px solid #21262d;font-family:"SF Mono",Consolas,Menlo,monospace}
td.ok{color:#3fb950}
td.fail{color:#f85149}
</style>
</head>
<body>
<h1>eore miner</h1>
<div class="subtitle">authority <span id="authority">-</span> &middot; phase <span id="phase">-</span></div>
<div class="stats">
<div class="card"><div class="label">Round</div><div class="value" id="round">-</div></div>
<div class="card"><div class="label">Last difficulty</div><div class="value" id="last">-</div></div>
<div class="card"><div class="label">Best difficulty</div><div class="value" id="best">-</div></div>
<div class="card"><div class="label">Confirmed / failed</div><div class="value" id="rounds">-</div></div>
<div class="card"><div class="label">Stake balance</div><div class="value" id="balance">-</div></div>
<div class="card"><div class="label">Session rewards</div><div class="value" id="rewards">-</div></div>
</div>
<div class="card">
<h2>Recent rounds</h2>
<table>
<thead><tr><th>Signature</th><th>Slot</th><th>Difficulty</th><th>Base</th><th>Boost</th><th>Total</th><th>Timing</th><th>Status</th></tr></thead>
<tbody id="recent"></tbody>
</table>
</div>
<script>
function esc(s){return String(s==null?"":s).replace(/[&<>"']/g,function(c){return "&#"+c.charCodeAt(0)+";"})}
function amt(v){if(!v)return "0";var s=String(v).padStart(12,"0");return s.slice(0,-11)+"."+s.slice(-11)}
function render(d){
document.getElementById("authority").textContent=d.authority;
document.getElementById("phase").textContent=d.phase;
document.getElementById("round").textContent=d.round;
document.getElementById("last").textContent=d.last_difficulty;
document.getElementById("best").textContent=d.best_difficulty;
document.getElementById("rounds").textContent=d.rounds_confirmed+" / "+d.rounds_failed;
document.getElementById("balance").textContent=d.balance;
document.getElementById("rewards").textContent=d.total_rewards;
var rows="";
(d.recent||[]).forEach(function(o){
var e=o.event||{};
var ok=o.status==="confirmed";
rows+="<tr><td>"+esc((o.signature||"").slice(0,8))+"</td><td>"+esc(o.slot||"")+"</td><td>"+esc(e.difficulty||o.difficulty)+
"</td><td>"+amt(e.base_reward)+"</td><td>"+amt(e.boost_reward)+"</td><td>"+amt(e.total_reward)+
"</td><td>"+(o.event?esc(e.timing)+"s":"")+"</td><td class=\""+(ok?"ok":"fail")+"\">"+esc(o.status)+"</td></tr>";
});
document.getElementById("recent").innerHTML=rows;
}
function poll(){fetch("/api/status").then(function(r){return r.json()}).then(render).catch(function(){})}
poll();setInterval(poll,5000);
</script>
</body>
</html>
`
