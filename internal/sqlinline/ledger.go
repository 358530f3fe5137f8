package sqlinline

const QEnsureTensorJobs = `--sql 7b5050cb-5f78-4089-bafa-bf9350a79535
create table if not exists tensor_jobs (
    id           uuid primary key default gen_random_uuid(),
    run_id       uuid not null,
    request_id   text not null default '',
    job_id       text not null unique,
    kind         text not null,
    template_id  text not null default '',
    input_path   text not null default '',
    style        text not null default '',
    status       text not null,
    image_url    text not null default '',
    output_path  text not null default '',
    error        text not null default '',
    created_at   timestamptz not null default now(),
    updated_at   timestamptz not null default now()
);
`

const QInsertTensorJob = `--sql d4248c93-8b0d-4515-8c0e-fe4801c10655
insert into tensor_jobs (run_id, request_id, job_id, kind, template_id, input_path, style, status)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text)
on conflict (job_id) do update set
    run_id = excluded.run_id,
    status = excluded.status,
    updated_at = now();
`

const QFinishTensorJob = `--sql 75cd201c-a17d-40f8-8090-61d0713f1ce1
update tensor_jobs
set status      = $2::text,
    image_url   = $3::text,
    output_path = $4::text,
    error       = $5::text,
    updated_at  = now()
where job_id = $1::text;
`

const QListTensorJobs = `--sql 61389e23-e387-4da2-9478-e0aaef1fb3b8
select run_id::text, request_id, job_id, kind, template_id, input_path, style,
       status, image_url, output_path, error, created_at, updated_at
from tensor_jobs
order by created_at desc
limit $1::int;
`

const QSelectTensorJob = `--sql 8a050dbf-ed88-4ff6-8cbc-44fb8ff3f50d
select run_id::text, request_id, job_id, kind, template_id, input_path, style,
       status, image_url, output_path, error, created_at, updated_at
from tensor_jobs
where job_id = $1::text
limit 1;
`
