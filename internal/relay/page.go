package relay

import (
	"html/template"
	"time"

	"github.com/thereceipt/order-printer/internal/gate"
)

var pageFuncs = template.FuncMap{
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("02/01/2006 15:04:05")
	},
	"pending":  func(s gate.Status) bool { return s == gate.StatusPending },
	"approved": func(s gate.Status) bool { return s == gate.StatusApproved },
}

const authPage = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="15">
<title>Autorização de IPs</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #ddd; padding: .5rem; text-align: left; }
.pending { color: #b36b00; } .approved { color: #1a7f37; } .rejected { color: #cf222e; }
form { display: inline; }
</style>
</head>
<body>
<h1>Autorização de IPs</h1>
<p>{{index .Counts "pending"}} pendente(s), {{index .Counts "approved"}} aprovado(s), {{index .Counts "rejected"}} rejeitado(s)</p>
<table>
<tr><th>IP</th><th>Origem</th><th>Status</th><th>Primeiro acesso</th><th>Última atividade</th><th></th></tr>
{{range .Entries}}
<tr>
<td>{{.IP}}</td>
<td>{{.Label}}</td>
<td class="{{.Status}}">{{.Status}}</td>
<td>{{when .FirstSeenAt}}</td>
<td>{{when .LastActivityAt}}</td>
<td>
{{if not (approved .Status)}}<form method="post" action="/approve-ip"><input type="hidden" name="ip" value="{{.IP}}"><button>Aprovar</button></form>{{end}}
{{if or (approved .Status) (pending .Status)}}<form method="post" action="/reject-ip"><input type="hidden" name="ip" value="{{.IP}}"><button>Rejeitar</button></form>{{end}}
<form method="post" action="/remove-ip"><input type="hidden" name="ip" value="{{.IP}}"><button>Remover</button></form>
</td>
</tr>
{{else}}
<tr><td colspan="6">Nenhum IP registrado.</td></tr>
{{end}}
</table>
</body>
</html>
`
