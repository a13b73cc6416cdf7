package sqlinline

const predictionColumns = `student_id, attendance_rate::text, family_income_score::text, parent_status_score::text,
       overall_risk_score::text, risk_level, risk_factors, intervention_notes, last_calculated`

const QSelectPrediction = `--sql de924f7a-4d49-4d5e-b3f0-21dc68d2429e
select ` + predictionColumns + `
from dropout_predictions
where student_id = $1::bigint;
`

const QListPredictions = `--sql cdc3bda8-d439-459f-ae3d-1573f457a567
select ` + predictionColumns + `
from dropout_predictions
where (cardinality($1::bigint[]) = 0 or student_id = any($1::bigint[]))
  and (cardinality($2::text[]) = 0 or risk_level = any($2::text[]))
  and ($3::timestamptz is null or last_calculated < $3::timestamptz)
order by student_id;
`

const QLockStudentRisk = `--sql 5e8d2c41-7b96-4f0a-a3e1-c64b9d07f2a8
select id
from students
where id = $1::bigint
for no key update;
`

const QUpsertPrediction = `--sql bc436f5b-57cd-4121-be46-f3a2d5b72b08
insert into dropout_predictions(student_id, attendance_rate, family_income_score, parent_status_score,
                                overall_risk_score, risk_level, risk_factors, intervention_notes, last_calculated)
values ($1::bigint, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::text, $7::text[], $8::jsonb, $9::timestamptz)
on conflict (student_id) do update set
    attendance_rate = excluded.attendance_rate,
    family_income_score = excluded.family_income_score,
    parent_status_score = excluded.parent_status_score,
    overall_risk_score = excluded.overall_risk_score,
    risk_level = excluded.risk_level,
    risk_factors = excluded.risk_factors,
    intervention_notes = excluded.intervention_notes,
    last_calculated = excluded.last_calculated;
`

const QUpsertAttendance = `--sql 67172ad0-8702-476a-a807-fde399d57be4
insert into attendance_records(student_id, day, present)
values ($1::bigint, $2::date, $3::boolean)
on conflict (student_id, day) do update set present = excluded.present;
`

const QAttendanceSummary = `--sql a9daa171-704a-4142-a722-9560cc7249e6
select count(*) filter (where present), count(*)
from attendance_records
where student_id = $1::bigint;
`
