package sqlinline

const donationColumns = `id, donor_id, type, project_id, student_id, amount::text, purpose, is_anonymous, origin_country,
       payment_status, payment_completed_at, refunded_at, created_at, updated_at`

const QSelectDonation = `--sql 9c7264cc-000c-4709-b9f9-1bb0586cce96
select ` + donationColumns + `
from donations
where id = $1::bigint;
`

const QLockDonation = `--sql 5e706839-4b1c-42bd-852c-ead657b2bb24
select ` + donationColumns + `
from donations
where id = $1::bigint
for update;
`

const QListDonations = `--sql 400bd637-81f0-4f41-9399-466d560d4131
select ` + donationColumns + `
from donations
where ($1::bigint = 0 or donor_id = $1::bigint)
  and ($2::bigint = 0 or project_id = $2::bigint)
  and ($3::bigint = 0 or student_id = $3::bigint)
  and ($4::text = '' or payment_status = $4::text)
order by id;
`

const QInsertDonation = `--sql 31567034-e3ee-4382-9c3f-2cbf54adc19b
insert into donations(donor_id, type, project_id, student_id, amount, purpose, is_anonymous, origin_country,
                      payment_status, payment_completed_at, refunded_at, created_at, updated_at)
values ($1::bigint, $2::text, $3::bigint, $4::bigint, $5::numeric, $6::text, $7::boolean, $8::text,
        $9::text, $10::timestamptz, $11::timestamptz, $12::timestamptz, $12::timestamptz)
returning id;
`

const QUpdateDonation = `--sql 561751b0-8d58-41b3-b93f-17ae4145a24f
update donations
set payment_status = $2::text,
    payment_completed_at = $3::timestamptz,
    refunded_at = $4::timestamptz,
    updated_at = $5::timestamptz
where id = $1::bigint;
`

const transactionColumns = `id, donation_id, type, method, status, reference, amount::text, response_code, response_message,
       customer_name, customer_email, customer_phone, initiated_at, completed_at, updated_at`

const QListTransactions = `--sql f94d8218-ed61-48d5-ae3c-c8bd1fa6435c
select ` + transactionColumns + `
from payment_transactions
where donation_id = $1::bigint
order by id;
`

const QSelectTransactionByReference = `--sql b7affcaf-a4e0-4835-90b2-80bd12bbb02c
select ` + transactionColumns + `
from payment_transactions
where reference = $1::text;
`

const QInsertTransaction = `--sql d7594355-59f0-45da-b8c2-e7330cbcf4b0
insert into payment_transactions(donation_id, type, method, status, reference, amount, response_code, response_message,
                                 customer_name, customer_email, customer_phone, initiated_at, completed_at, updated_at)
values ($1::bigint, $2::text, $3::text, $4::text, $5::text, $6::numeric, $7::text, $8::text,
        $9::text, $10::text, $11::text, $12::timestamptz, $13::timestamptz, $14::timestamptz)
returning id;
`

const QUpdateTransaction = `--sql 3cdc8d73-7578-4e39-a009-9caed9e78ead
update payment_transactions
set method = $2::text,
    status = $3::text,
    response_code = $4::text,
    response_message = $5::text,
    completed_at = $6::timestamptz,
    updated_at = $7::timestamptz
where id = $1::bigint;
`

const utilizationColumns = `id, donation_id, project_id, school_id, amount_used::text, description, vendor, invoice_number,
       receipt_urls, utilization_date, status, reviewed_by, review_note, reviewed_at, created_at, updated_at`

const QSelectUtilization = `--sql a9fe2836-587c-4cba-bff4-fb0131375788
select ` + utilizationColumns + `
from fund_utilizations
where id = $1::bigint;
`

const QLockUtilization = `--sql 0c2f5b7e-93d1-4a6e-b8c4-7e1d2a9f3b60
select ` + utilizationColumns + `
from fund_utilizations
where id = $1::bigint
for update;
`

const QListUtilizations = `--sql 165d9780-71f7-4b65-82cf-48bf000b27e5
select ` + utilizationColumns + `
from fund_utilizations
where ($1::bigint = 0 or donation_id = $1::bigint)
  and ($2::bigint = 0 or project_id = $2::bigint)
  and ($3::bigint = 0 or school_id = $3::bigint)
  and ($4::text = '' or status = $4::text)
order by id;
`

const QInsertUtilization = `--sql ecaa6d46-ddd6-43c4-9613-69f5aebd6c6d
insert into fund_utilizations(donation_id, project_id, school_id, amount_used, description, vendor, invoice_number,
                              receipt_urls, utilization_date, status, created_at, updated_at)
values ($1::bigint, $2::bigint, $3::bigint, $4::numeric, $5::text, $6::text, $7::text,
        $8::text[], $9::timestamptz, $10::text, $11::timestamptz, $11::timestamptz)
returning id;
`

const QUpdateUtilization = `--sql 48b831a7-e6e6-4619-a1cd-78cb9e7d2777
update fund_utilizations
set status = $2::text,
    reviewed_by = $3::text,
    review_note = $4::text,
    reviewed_at = $5::timestamptz,
    updated_at = $6::timestamptz
where id = $1::bigint
  and status = 'PENDING';
`

const transparencyColumns = `id, utilization_id, before_photos, after_photos, beneficiary_feedback, unit_quantity::text, unit_cost::text,
       verification_status, verified_by, verified_at, is_public, published_at, reconciliation_warning, created_at, updated_at`

const QSelectTransparency = `--sql 4584d699-ace4-4406-ba89-3a3fa466009d
select ` + transparencyColumns + `
from fund_transparency
where id = $1::bigint;
`

const QLockTransparency = `--sql 9a41e6d3-2c7b-4f85-a0d9-5b3e8c1f6a27
select ` + transparencyColumns + `
from fund_transparency
where id = $1::bigint
for update;
`

const QSelectTransparencyByUtilization = `--sql 7b5a1a03-b090-4f17-affd-f8ad5d7d3c1b
select ` + transparencyColumns + `
from fund_transparency
where utilization_id = $1::bigint;
`

const QInsertTransparency = `--sql 1da51ca4-f7ac-416a-a4f9-91676413790b
insert into fund_transparency(utilization_id, before_photos, after_photos, beneficiary_feedback, unit_quantity, unit_cost,
                              verification_status, verified_by, verified_at, is_public, published_at,
                              reconciliation_warning, created_at, updated_at)
values ($1::bigint, $2::text[], $3::text[], $4::text, $5::numeric, $6::numeric,
        $7::text, $8::text, $9::timestamptz, $10::boolean, $11::timestamptz,
        $12::jsonb, $13::timestamptz, $13::timestamptz)
returning id;
`

const QUpdateTransparency = `--sql 7277e0ee-e0c0-4ad8-b697-62f7bbc4107c
update fund_transparency
set verification_status = $2::text,
    verified_by = $3::text,
    verified_at = $4::timestamptz,
    is_public = $5::boolean,
    published_at = $6::timestamptz,
    updated_at = $7::timestamptz
where id = $1::bigint;
`

const projectColumns = `id, ngo_id, title, allocated_budget::text, active`

const QSelectProject = `--sql aeebc560-3a02-46a7-a180-8aa6868c5151
select ` + projectColumns + `
from projects
where id = $1::bigint;
`

const QLockProject = `--sql 3ecb1bf1-d290-42d5-8e33-6c1a87efe500
select ` + projectColumns + `
from projects
where id = $1::bigint
for update;
`

const QListProjects = `--sql 265bfed0-7ef6-4a6e-8daf-2bb14e9bf535
select ` + projectColumns + `
from projects
where ($1::bigint = 0 or ngo_id = $1::bigint)
order by id;
`

const QSelectSchool = `--sql 899d5741-6a4a-474d-ab9f-e8551ecf0c45
select id, name
from schools
where id = $1::bigint;
`

const QSelectStudent = `--sql 57daf710-2709-4319-a86e-456eb8dadc7c
select id, school_id, name
from students
where id = $1::bigint;
`

const QListStudents = `--sql 1c9fadf1-d718-4fa2-b7d2-cf324c0c2d2c
select id, school_id, name
from students
where ($1::bigint = 0 or school_id = $1::bigint)
order by id;
`

const QListParticipations = `--sql 67b8b3fe-dc76-45ab-8fdb-91310b950dfe
select project_id, school_id, allocated_budget::text, selected_at
from project_schools
where ($1::bigint = 0 or project_id = $1::bigint)
  and ($2::bigint = 0 or school_id = $2::bigint)
order by project_id, school_id;
`

const QInsertParticipation = `--sql fc837b94-33a0-42a4-a8b6-937db2f961d7
insert into project_schools(project_id, school_id, allocated_budget, selected_at)
values ($1::bigint, $2::bigint, $3::numeric, $4::timestamptz);
`
