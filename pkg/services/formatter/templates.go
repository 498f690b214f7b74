package formatter

const answerTemplate = `You are an assistant that helps users understand data from a financial ledger.
Given the user's question, the SQL query that was run and its result, provide a clear, concise answer.
Only use the data in the result. If the result is empty, say so.

User Question: {{.Question}}
SQL Query: {{.Query}}
SQL Result:
{{.Result}}
Your Response:
`

const failureTemplate = `You are an assistant that helps users query a financial ledger.
The user's question could not be answered: {{.Attempts}} attempt(s) to produce a working SQL query all failed.
Write a short, honest explanation for the user. Do not invent an answer or any numbers.
Mention what went wrong in plain language and suggest how the question could be rephrased.

User Question: {{.Question}}
Attempts made: {{.Attempts}}
Last SQL Query: {{.LastQuery}}
Last Error: {{.LastError}}

Your Response:
`

const commentaryTemplate = `You are a financial commentary assistant. Your task is to convert structured financial data into clear, concise insights.

Report: {{.Report}}
Current period: {{.Periods.Current}}
Previous period: {{.Periods.Previous}}
Year-ago period: {{if .Periods.HasYearAgo}}{{.Periods.YearAgo}}{{else}}not available{{end}}

Total Y/Y Amount: {{amount .TotalYoY}}
Total Q/Q Amount: {{amount .TotalQoQ}}

Selected movements:
{{range .Sections}}
{{.Reason}} | {{.Comparison}} | {{.Periods}} | {{amount .Value}}
{{- if not .Available}} | no year-ago data, comparison unavailable
{{- else}} | {{range $i, $d := .Deltas}}{{if $i}}, {{end}}{{$d.Attribute}} ({{$d.Column}}): {{signed $d.Difference}}{{end}}
{{- end}}
{{end}}
Instructions:
1. Begin with the total Y/Y and Q/Q amounts. Label an amount "Favorable" when positive and "Unfavorable" when negative.
2. Write the Y/Y commentary first, then the Q/Q commentary. Restate the section total and its label at the start of each section.
3. Within a section, when the total is negative list negative reason codes first, then positive ones. When it is positive list positive reason codes first.
4. Name the contributing attributes that drove each movement.
5. Do not add or assume reason codes, attributes or periods that are not listed above.
6. If a comparison is unavailable, say so briefly instead of estimating it.
`

const reviseTemplate = `You are a financial commentary assistant. Revise the existing commentary following the user's instruction.
Keep every figure that the instruction does not ask to change. Do not invent new figures.

Selected movements:
{{range .Selections}}- {{.RowKey}} {{.ColumnKey}}: {{observed .Value}}
{{end}}
Existing commentary:
{{.Current}}

User instruction: {{.Instruction}}

Revised commentary:
`
